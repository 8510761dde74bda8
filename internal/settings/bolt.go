package settings

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// FileName is the settings file created inside the data directory.
const FileName = "apimonitor.db"

var bucketName = []byte("APIMonitor")

// keys mirror the value names used by earlier releases
var (
	keyURL          = []byte("ApiUrl")
	keyInterval     = []byte("RefreshInterval")
	keyLogging      = []byte("LoggingEnabled")
	keyConfigured   = []byte("Configured")
	keyHistoryLimit = []byte("HistoryLimit")
	keyHistoryCount = []byte("HistoryCount")
	keyHistoryData  = []byte("HistoryData")
)

var settingsKeys = [][]byte{keyURL, keyInterval, keyLogging, keyHistoryLimit}

var errValueMalformed = errors.New("malformed value")

const lockTimeout = 1 * time.Second

var _ Store = (*BoltStore)(nil)

// BoltStore is a [Store] backed by a bbolt file.
type BoltStore struct {
	path string
	db   *bbolt.DB
}

// Open opens or creates the settings file in dir. The file lock doubles as
// a single-instance guard: if another process holds it, Open fails with
// [ErrAlreadyRunning].
func Open(dir string) (*BoltStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dir, FileName)

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: lockTimeout})
	if errors.Is(err, bbolt.ErrTimeout) {
		return nil, fmt.Errorf("%w: %s is locked", ErrAlreadyRunning, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open settings store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &BoltStore{path: path, db: db}, nil
}

// Path returns the location of the settings file.
func (b *BoltStore) Path() string {
	return b.path
}

// Load implements [Store]. Missing or malformed individual values fall back
// to their defaults.
func (b *BoltStore) Load() (Settings, bool, error) {
	s := Defaults()
	found := false

	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		for _, k := range settingsKeys {
			if bucket.Get(k) != nil {
				found = true
				break
			}
		}

		if v := bucket.Get(keyURL); v != nil {
			s.URL = string(v)
		}
		if n, err := getUint32(bucket, keyInterval); err == nil {
			s.Interval = time.Duration(n) * time.Second
		}
		if n, err := getUint32(bucket, keyLogging); err == nil {
			s.LoggingEnabled = n != 0
		}
		if n, err := getUint32(bucket, keyHistoryLimit); err == nil {
			s.HistoryLimit = int(n)
		}
		return nil
	})
	if err != nil {
		return Defaults(), false, fmt.Errorf("load settings: %w", err)
	}
	return s.Normalize(), found, nil
}

// Save implements [Store].
func (b *BoltStore) Save(s Settings) (Settings, error) {
	s = s.Normalize()

	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if err := bucket.Put(keyURL, []byte(s.URL)); err != nil {
			return err
		}
		if err := putUint32(bucket, keyInterval, uint32(s.Interval/time.Second)); err != nil {
			return err
		}
		if err := putUint32(bucket, keyLogging, boolToUint32(s.LoggingEnabled)); err != nil {
			return err
		}
		return putUint32(bucket, keyHistoryLimit, uint32(s.HistoryLimit))
	})
	if err != nil {
		return s, fmt.Errorf("save settings: %w", err)
	}
	return s, nil
}

// Configured implements [Store].
func (b *BoltStore) Configured() (bool, error) {
	var configured bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		n, err := getUint32(tx.Bucket(bucketName), keyConfigured)
		configured = err == nil && n != 0
		return nil
	})
	return configured, err
}

// MarkConfigured implements [Store].
func (b *BoltStore) MarkConfigured() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return putUint32(tx.Bucket(bucketName), keyConfigured, 1)
	})
}

// LoadHistory implements [Store]. A missing blob is an empty history; the
// blob is returned as stored and validated by the history log.
func (b *BoltStore) LoadHistory() (uint32, []byte, error) {
	var (
		count uint32
		blob  []byte
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		n, err := getUint32(bucket, keyHistoryCount)
		if err != nil {
			return nil
		}
		count = n
		if v := bucket.Get(keyHistoryData); v != nil {
			// bbolt values are only valid inside the transaction
			blob = make([]byte, len(v))
			copy(blob, v)
		}
		return nil
	})
	if err != nil {
		return 0, nil, fmt.Errorf("load history: %w", err)
	}
	return count, blob, nil
}

// SaveHistory implements [Store].
func (b *BoltStore) SaveHistory(count uint32, blob []byte) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if err := putUint32(bucket, keyHistoryCount, count); err != nil {
			return err
		}
		if count == 0 {
			return bucket.Delete(keyHistoryData)
		}
		return bucket.Put(keyHistoryData, blob)
	})
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// Close releases the file and its lock.
func (b *BoltStore) Close() error {
	return b.db.Close()
}

func getUint32(bucket *bbolt.Bucket, key []byte) (uint32, error) {
	v := bucket.Get(key)
	if v == nil {
		return 0, fmt.Errorf("%s: not found", key)
	}
	if len(v) != 4 {
		return 0, fmt.Errorf("%s: %w", key, errValueMalformed)
	}
	return binary.LittleEndian.Uint32(v), nil
}

func putUint32(bucket *bbolt.Bucket, key []byte, n uint32) error {
	return bucket.Put(key, binary.LittleEndian.AppendUint32(nil, n))
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
