package symbol

import (
	"fmt"
	"io"
	"net/http"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/snailtrace/snail/snailerr"
)

// Fetcher downloads debug artifacts (PDBs, DWARF debuginfo) over HTTP(S),
// retrying transient failures. Grounded on
// containerd-nydus-snapshotter/pkg/resolve/resolver.go's
// retryablehttp.Client wrapping.
type Fetcher struct {
	client *retryablehttp.Client
	log    *logrus.Entry
}

// NewFetcher creates a Fetcher with retry logging routed through log.
func NewFetcher(log *logrus.Entry) *Fetcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "symbol.fetcher")

	client := retryablehttp.NewClient()
	client.Logger = nil // route failures through our own logrus entry instead
	client.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			log.WithFields(logrus.Fields{"url": req.URL.String(), "attempt": attempt}).Debug("retrying download")
		}
	}

	return &Fetcher{client: client, log: log}
}

// Fetch downloads url's body. A 404 maps to snailerr.NotFound (non-fatal:
// the caller degrades to a generic symbol); any other non-2xx status or
// transport error after retries is returned as snailerr.Io.
func (f *Fetcher) Fetch(url string) ([]byte, error) {
	req, err := retryablehttp.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, snailerr.Wrap(err, snailerr.Internal, "symbol: building request for "+url)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, snailerr.Wrap(err, snailerr.Io, "symbol: fetching "+url)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, snailerr.Newf(snailerr.NotFound, "symbol: %s: not found", url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, snailerr.Newf(snailerr.Io, "symbol: %s: unexpected status %s", url, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, snailerr.Wrap(err, snailerr.Io, "symbol: reading body of "+url)
	}
	return body, nil
}

// PDBURL builds the symbol-server download URL for a PDB identified by
// (name, GUID, age), per §6's "<base>/<pdb_name>/<GUID><age>/<pdb_name>"
// layout.
func PDBURL(base, pdbName string, guid [16]byte, age uint32) string {
	return fmt.Sprintf("%s/%s/%s%X/%s", base, pdbName, formatGUID(guid), age, pdbName)
}

// DebuginfodURL builds the debuginfod download URL for a build id, per §6's
// "<base>/buildid/<build_id>/debuginfo" layout.
func DebuginfodURL(base string, buildID []byte) string {
	return fmt.Sprintf("%s/buildid/%x/debuginfo", base, buildID)
}

// formatGUID renders a PDB GUID in the upper-case, dash-free form the
// Microsoft symbol-server protocol expects.
func formatGUID(g [16]byte) string {
	return fmt.Sprintf("%08X%04X%04X%02X%02X%02X%02X%02X%02X%02X%02X",
		uint32(g[0])|uint32(g[1])<<8|uint32(g[2])<<16|uint32(g[3])<<24,
		uint16(g[4])|uint16(g[5])<<8,
		uint16(g[6])|uint16(g[7])<<8,
		g[8], g[9], g[10], g[11], g[12], g[13], g[14], g[15])
}
