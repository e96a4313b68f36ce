package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/arkiv/arkiv-platform-reference/internal/proof"
)

var bucketAddresses = []byte(TableName)

// Bolt keeps records in a bbolt bucket keyed by big-endian fid. bbolt allows
// one writer at a time, so each Put is an isolated transaction.
type Bolt struct {
	db *bolt.DB
}

var _ Store = (*Bolt)(nil)

func NewBolt(path string) (*Bolt, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Initialize(context.Context) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketAddresses)
		return err
	})
}

func (b *Bolt) Upsert(_ context.Context, r proof.AddressRecord) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketAddresses)
		if bkt == nil {
			return fmt.Errorf("bucket %s not initialized", bucketAddresses)
		}
		return bkt.Put(fidKey(r.FID), data)
	})
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

func fidKey(fid uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, fid)
	return k
}
