// Package diagsession extracts the ETW payload embedded in a Visual Studio
// .diagsession archive: a ZIP file whose metadata.xml names the inner .etl
// entry to process.
package diagsession

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"

	"github.com/snailtrace/snail/snailerr"
)

type resource struct {
	Type                    string `xml:"Type,attr"`
	Name                    string `xml:"Name,attr"`
	ResourcePackageURIPrefix string `xml:"ResourcePackageUriPrefix,attr"`
}

type metadata struct {
	Resources []resource `xml:"Resource"`
}

const etlResourceType = "DiagnosticsHub.Resource.EtlFile"

// Extraction is an extracted .etl file ready to be opened; Close removes
// the temporary directory it was extracted into.
type Extraction struct {
	ETLPath string
	dir     string
}

// Close removes the temporary directory the ETL file was extracted into.
func (e *Extraction) Close() error {
	if e.dir == "" {
		return nil
	}
	return os.RemoveAll(e.dir)
}

// Extract opens the .diagsession archive at path, locates its ETW resource
// via metadata.xml, and extracts the inner .etl entry to a fresh temp
// directory.
func Extract(path string) (*Extraction, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, snailerr.Wrap(err, snailerr.Io, "diagsession: opening archive")
	}
	defer zr.Close()

	md, err := readMetadata(&zr.Reader)
	if err != nil {
		return nil, err
	}

	entryName, err := etlEntryName(md)
	if err != nil {
		return nil, err
	}

	var entry *zip.File
	for _, f := range zr.File {
		if f.Name == entryName {
			entry = f
			break
		}
	}
	if entry == nil {
		return nil, snailerr.Newf(snailerr.NotFound, "diagsession: etl entry %q not found in archive", entryName)
	}

	dir, err := os.MkdirTemp("", "snail-diagsession-*")
	if err != nil {
		return nil, snailerr.Wrap(err, snailerr.Io, "diagsession: creating temp dir")
	}

	outPath := filepath.Join(dir, filepath.Base(entryName))
	if err := extractEntry(entry, outPath); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	return &Extraction{ETLPath: outPath, dir: dir}, nil
}

func readMetadata(zr *zip.Reader) (*metadata, error) {
	f, err := zr.Open("metadata.xml")
	if err != nil {
		return nil, snailerr.Wrap(err, snailerr.BadFormat, "diagsession: missing metadata.xml")
	}
	defer f.Close()

	var md metadata
	if err := xml.NewDecoder(f).Decode(&md); err != nil {
		return nil, snailerr.Wrap(err, snailerr.BadFormat, "diagsession: parsing metadata.xml")
	}
	return &md, nil
}

func etlEntryName(md *metadata) (string, error) {
	for _, r := range md.Resources {
		if r.Type == etlResourceType {
			return r.ResourcePackageURIPrefix + r.Name, nil
		}
	}
	return "", snailerr.New(snailerr.NotFound, "diagsession: no EtlFile resource in metadata.xml")
}

func extractEntry(entry *zip.File, outPath string) error {
	src, err := entry.Open()
	if err != nil {
		return snailerr.Wrap(err, snailerr.Io, "diagsession: opening etl entry")
	}
	defer src.Close()

	dst, err := os.Create(outPath)
	if err != nil {
		return snailerr.Wrap(err, snailerr.Io, "diagsession: creating extracted file")
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return snailerr.Wrap(err, snailerr.Io, "diagsession: extracting etl entry")
	}
	return nil
}
