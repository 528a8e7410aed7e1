package config

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	modelsBucketName  = "models"
	promptsBucketName = "prompts"
)

// BoltStore implements Store on top of a BoltDB file. Every read runs in its
// own transaction, so each call sees the latest committed documents.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the store at path
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(modelsBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(promptsBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// ModelDocument returns the model document for op
func (b *BoltStore) ModelDocument(ctx context.Context, op Operation) (*ModelDocument, error) {
	var doc ModelDocument
	if err := b.get(ctx, modelsBucketName, op, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// PromptDocument returns the prompt document for op
func (b *BoltStore) PromptDocument(ctx context.Context, op Operation) (*PromptDocument, error) {
	var doc PromptDocument
	if err := b.get(ctx, promptsBucketName, op, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// PutModelDocument stores the model document for op
func (b *BoltStore) PutModelDocument(op Operation, doc *ModelDocument) error {
	return b.put(modelsBucketName, op, doc)
}

// PutPromptDocument stores the prompt document for op
func (b *BoltStore) PutPromptDocument(op Operation, doc *PromptDocument) error {
	return b.put(promptsBucketName, op, doc)
}

func (b *BoltStore) get(ctx context.Context, bucketName string, op Operation, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket == nil {
			return fmt.Errorf("bucket %s missing", bucketName)
		}
		data := bucket.Get([]byte(op))
		if data == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("unmarshaling %s/%s: %w", bucketName, op, err)
		}
		return nil
	})
}

func (b *BoltStore) put(bucketName string, op Operation, v any) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshaling %s/%s: %w", bucketName, op, err)
		}
		return bucket.Put([]byte(op), data)
	})
}

// Close closes the database
func (b *BoltStore) Close() error {
	return b.db.Close()
}
