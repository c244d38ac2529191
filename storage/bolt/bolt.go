// Package bolt is a core.Cache backed by a BoltDB file.
package bolt

import (
	"context"
	"errors"
	"log"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket holds the rule-set documents.
var Bucket = []byte("rulesets")

type Storage struct {
	Debug    bool
	filename string
	db       *bolt.DB
}

func NewStorage(filename string) (*Storage, error) {
	if filename == "" {
		return nil, errors.New("no filename")
	}
	return &Storage{
		filename: filename,
	}, nil
}

func (s *Storage) Open() error {
	opts := &bolt.Options{
		Timeout: time.Second,
	}

	db, err := bolt.Open(s.filename, 0644, opts)
	if err != nil {
		return err
	}
	s.db = db

	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(Bucket)
		return err
	})
}

func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Storage) logf(format string, args ...interface{}) {
	if s.Debug {
		log.Printf("BoltDB Storage."+format, args...)
	}
}

// Get returns a copy of the document cached under the name, or nil.
func (s *Storage) Get(ctx context.Context, name string) ([]byte, error) {
	s.logf("Get %s", name)
	var acc []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(Bucket)
		if b == nil {
			return nil
		}
		if bs := b.Get([]byte(name)); bs != nil {
			// Only valid during the transaction.
			acc = append([]byte(nil), bs...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *Storage) Put(ctx context.Context, name string, bs []byte) error {
	s.logf("Put %s (%d bytes)", name, len(bs))
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(Bucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(name), bs)
	})
}

// Delete removes the named document.
func (s *Storage) Delete(ctx context.Context, name string) error {
	s.logf("Delete %s", name)
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(Bucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(name))
	})
}

// Names lists the cached documents.
func (s *Storage) Names(ctx context.Context) ([]string, error) {
	acc := make([]string, 0, 16)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(Bucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			acc = append(acc, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}
