package services

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var consumedBucket = []byte("consumed")

// Ledger records the ids of redeemed tokens until they expire.
type Ledger struct {
	db  *bolt.DB
	now func() time.Time
}

// OpenLedger opens (or creates) the ledger file and drops entries whose
// token has expired since.
func OpenLedger(path string) (*Ledger, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open token ledger: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(consumedBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init token ledger: %w", err)
	}

	l := &Ledger{db: db, now: time.Now}
	if _, err := l.Prune(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// Consume marks id as used. It fails with ErrTokenUsed when id was consumed
// before.
func (l *Ledger) Consume(id string, expiresAt time.Time) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(consumedBucket)
		if b.Get([]byte(id)) != nil {
			return ErrTokenUsed
		}
		var v [8]byte
		binary.BigEndian.PutUint64(v[:], uint64(expiresAt.Unix()))
		return b.Put([]byte(id), v[:])
	})
}

func (l *Ledger) Used(id string) (bool, error) {
	used := false
	err := l.db.View(func(tx *bolt.Tx) error {
		used = tx.Bucket(consumedBucket).Get([]byte(id)) != nil
		return nil
	})
	return used, err
}

// Prune deletes entries whose token expiry has passed and reports how many
// were removed.
func (l *Ledger) Prune() (int, error) {
	cutoff := l.now().Unix()
	removed := 0
	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(consumedBucket)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			if len(v) != 8 || int64(binary.BigEndian.Uint64(v)) < cutoff {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune token ledger: %w", err)
	}
	return removed, nil
}
