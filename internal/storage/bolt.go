package storage

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	ConfigBucket   = []byte("config")   // format version, timestamps, vault ID
	ArtifactBucket = []byte("artifact") // current artifact bytes
)

// Config keys
var (
	ConfigVersion  = []byte("version")
	ConfigCreated  = []byte("created")
	ConfigModified = []byte("modified")
	ConfigVaultID  = []byte("vault_id")

	ArtifactCurrent = []byte("current")
)

const boltLockTimeout = 5 * time.Second

// Bolt stores the artifact inside a BBolt database. The database is opened
// per operation so the file lock is never held between commands.
type Bolt struct {
	path string
}

// NewBolt returns a bolt backend for path. Nothing is created until Write.
func NewBolt(path string) *Bolt {
	return &Bolt{path: path}
}

func (b *Bolt) Kind() string { return KindBolt }
func (b *Bolt) Path() string { return b.path }

func (b *Bolt) open(readOnly bool) (*bolt.DB, error) {
	if readOnly {
		if _, err := os.Stat(b.path); errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
	}
	db, err := bolt.Open(b.path, FilePerm, &bolt.Options{
		Timeout:  boltLockTimeout,
		ReadOnly: readOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func (b *Bolt) view(fn func(tx *bolt.Tx) error) error {
	db, err := b.open(true)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.View(fn)
}

func (b *Bolt) Exists() (bool, error) {
	var found bool
	err := b.view(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(ArtifactBucket)
		found = bucket != nil && bucket.Get(ArtifactCurrent) != nil
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return found, err
}

func (b *Bolt) Read() ([]byte, error) {
	var data []byte
	err := b.view(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(ArtifactBucket)
		if bucket == nil {
			return ErrNotFound
		}
		v := bucket.Get(ArtifactCurrent)
		if v == nil {
			return ErrNotFound
		}
		// Make a copy since the slice is only valid during the transaction
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

// Write stores data as the current artifact. Buckets, the created
// timestamp and the vault ID are set up on first write.
func (b *Bolt) Write(data []byte) error {
	db, err := b.open(false)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		config, err := tx.CreateBucketIfNotExists(ConfigBucket)
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", ConfigBucket, err)
		}
		artifacts, err := tx.CreateBucketIfNotExists(ArtifactBucket)
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", ArtifactBucket, err)
		}

		now, _ := time.Now().MarshalBinary()
		if config.Get(ConfigVersion) == nil {
			if err := config.Put(ConfigVersion, []byte("1")); err != nil {
				return err
			}
			if err := config.Put(ConfigCreated, now); err != nil {
				return err
			}
		}
		if config.Get(ConfigVaultID) == nil {
			id, err := newVaultID()
			if err != nil {
				return err
			}
			if err := config.Put(ConfigVaultID, []byte(id)); err != nil {
				return err
			}
		}
		if err := config.Put(ConfigModified, now); err != nil {
			return err
		}
		return artifacts.Put(ArtifactCurrent, data)
	})
}

func (b *Bolt) Stat() (*Info, error) {
	info := &Info{}
	err := b.view(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		artifacts := tx.Bucket(ArtifactBucket)
		if config == nil || artifacts == nil {
			return ErrNotFound
		}
		current := artifacts.Get(ArtifactCurrent)
		if current == nil {
			return ErrNotFound
		}
		info.Size = int64(len(current))

		if data := config.Get(ConfigCreated); data != nil {
			if err := info.Created.UnmarshalBinary(data); err != nil {
				return fmt.Errorf("invalid created time: %w", err)
			}
		}
		if data := config.Get(ConfigModified); data != nil {
			if err := info.Modified.UnmarshalBinary(data); err != nil {
				return fmt.Errorf("invalid modified time: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// VaultID returns the ID written with the first artifact
func (b *Bolt) VaultID() (string, error) {
	var vaultID string
	err := b.view(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return ErrNotFound
		}
		data := config.Get(ConfigVaultID)
		if data == nil {
			return fmt.Errorf("vault_id not found")
		}
		vaultID = string(data)
		return nil
	})
	return vaultID, err
}

func newVaultID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate vault ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Compact rewrites the database into a fresh file, dropping free pages left
// behind by earlier artifact versions.
func (b *Bolt) Compact() error {
	src, err := b.open(false)
	if err != nil {
		return err
	}

	srcPath := b.path
	tmpPath := srcPath + ".compact"

	dst, err := bolt.Open(tmpPath, FilePerm, nil)
	if err != nil {
		src.Close()
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	// Copy all buckets
	err = src.View(func(srcTx *bolt.Tx) error {
		return dst.Update(func(dstTx *bolt.Tx) error {
			return srcTx.ForEach(func(name []byte, srcBucket *bolt.Bucket) error {
				dstBucket, err := dstTx.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				return srcBucket.ForEach(func(k, v []byte) error {
					return dstBucket.Put(k, v)
				})
			})
		})
	})

	if err != nil {
		dst.Close()
		src.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := dst.Close(); err != nil {
		src.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}

	if err := src.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	// Atomic replace
	backupPath := srcPath + ".backup"
	if err := os.Rename(srcPath, backupPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to backup original: %w", err)
	}
	if err := os.Rename(tmpPath, srcPath); err != nil {
		os.Rename(backupPath, srcPath) // rollback
		return fmt.Errorf("failed to replace database: %w", err)
	}
	os.Remove(backupPath)

	return nil
}
