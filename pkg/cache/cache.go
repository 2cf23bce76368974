package cache

import (
	"fmt"
	"os"
	"sync"
	"time"

	bolt "github.com/coreos/bbolt"
	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/chazu/reactor/pkg/bytecode"
)

var bucketName = []byte("programs")

// Store is a bbolt-backed cache of parsed Program images, mirroring the
// mutex-guarded singleton bolt.Open pattern a graph-database daemon in the
// example corpus uses for its own embedded store.
type Store struct {
	mu sync.Mutex
	db *bolt.DB
}

// Open opens (creating if necessary) a bbolt database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: init bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// key combines the source path with its modification time so an edited
// file never hits a stale cache entry.
func key(path string, modTime time.Time) []byte {
	return []byte(fmt.Sprintf("%s@%d", path, modTime.UnixNano()))
}

// Get returns the cached Program for path if present and fresh (the
// stored modtime matches the file's current modtime), or ok=false on any
// miss, including a bucket that fails to decode (corruption is treated as
// a miss, never an error, since the loader can always rebuild the entry).
func (s *Store) Get(path string) (*bytecode.Program, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var compressed []byte
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName).Get(key(path, info.ModTime()))
		if b == nil {
			return nil
		}
		compressed = append([]byte(nil), b...)
		return nil
	})
	if err != nil || compressed == nil {
		return nil, false
	}

	raw, err := decompress(compressed)
	if err != nil {
		return nil, false
	}
	var p bytecode.Program
	if err := cbor.Unmarshal(raw, &p); err != nil {
		return nil, false
	}
	return &p, true
}

// Put stores prog for path, keyed by the file's current modtime.
func (s *Store) Put(path string, prog *bytecode.Program) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cache: stat %s: %w", path, err)
	}
	raw, err := cbor.Marshal(prog)
	if err != nil {
		return fmt.Errorf("cache: encode program: %w", err)
	}
	compressed, err := compress(raw)
	if err != nil {
		return fmt.Errorf("cache: compress program: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(key(path, info.ModTime()), compressed)
	})
}

func compress(raw []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}

func decompress(compressed []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(compressed, nil)
}
