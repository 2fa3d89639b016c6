package symbol

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"github.com/pkg/errors"

	"github.com/snailtrace/snail/snailerr"
)

const storeFileName = "artifacts.db"

var (
	pdbBucket       = []byte("pdb")
	debuginfoBucket = []byte("debuginfo")
)

// artifactRecord is the JSON value stored for each cached debug artifact:
// where it landed on disk, and when it was fetched.
type artifactRecord struct {
	Path       string    `json:"path"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Store is the on-disk cache of downloaded debug artifacts: a single bbolt
// database, one bucket per artifact kind, mapping a content key to the
// local file path. Grounded on
// containerd-nydus-snapshotter/pkg/store/database.go's bucket-per-kind
// pattern.
type Store struct {
	db  *bolt.DB
	dir string
}

// OpenStore opens (creating if necessary) the artifact store rooted at dir.
func OpenStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, snailerr.Wrap(err, snailerr.Io, "symbol: creating cache dir "+dir)
	}

	db, err := bolt.Open(filepath.Join(dir, storeFileName), 0o600, &bolt.Options{Timeout: 4 * time.Second})
	if err != nil {
		return nil, snailerr.Wrap(err, snailerr.Io, "symbol: opening artifact store")
	}

	s := &Store{db: db, dir: dir}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(pdbBucket); err != nil {
			return errors.Wrap(err, "pdb bucket")
		}
		if _, err := tx.CreateBucketIfNotExists(debuginfoBucket); err != nil {
			return errors.Wrap(err, "debuginfo bucket")
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, snailerr.Wrap(err, snailerr.Io, "symbol: initializing artifact store buckets")
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// LookupPDB returns the cached local path for a PDB keyed by
// "<pdb_name>/<guid><age>", if any.
func (s *Store) LookupPDB(key string) (string, bool) {
	return s.lookup(pdbBucket, key)
}

// PutPDB records path as the cached artifact for a PDB key.
func (s *Store) PutPDB(key, path string) error {
	return s.put(pdbBucket, key, path)
}

// LookupDebuginfo returns the cached local path for a build id, if any.
func (s *Store) LookupDebuginfo(buildID string) (string, bool) {
	return s.lookup(debuginfoBucket, buildID)
}

// PutDebuginfo records path as the cached artifact for a build id.
func (s *Store) PutDebuginfo(buildID, path string) error {
	return s.put(debuginfoBucket, buildID, path)
}

func (s *Store) lookup(bucket []byte, key string) (string, bool) {
	var rec artifactRecord
	found := false
	_ = s.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket(bucket).Get([]byte(key))
		if val == nil {
			return nil
		}
		if err := json.Unmarshal(val, &rec); err != nil {
			return nil
		}
		if _, err := os.Stat(rec.Path); err != nil {
			return nil // cached record outlived its file; treat as a miss
		}
		found = true
		return nil
	})
	return rec.Path, found
}

func (s *Store) put(bucket []byte, key, path string) error {
	rec := artifactRecord{Path: path, FetchedAt: time.Now()}
	val, err := json.Marshal(rec)
	if err != nil {
		return snailerr.Wrap(err, snailerr.Internal, "symbol: marshaling artifact record")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), val)
	})
}

// WriteAtomic writes data to a temp file under dir then renames it to
// finalName, so a crash mid-write never leaves a partial file at the final
// path (§5's "download temporaries" discipline). Returns the final path.
func WriteAtomic(dir, finalName string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", snailerr.Wrap(err, snailerr.Io, "symbol: creating "+dir)
	}
	final := filepath.Join(dir, finalName)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", snailerr.Wrap(err, snailerr.Io, "symbol: creating temp file in "+dir)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", snailerr.Wrap(err, snailerr.Io, "symbol: writing "+tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", snailerr.Wrap(err, snailerr.Io, "symbol: closing "+tmpName)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return "", snailerr.Wrap(err, snailerr.Io, "symbol: renaming into place "+final)
	}
	return final, nil
}
