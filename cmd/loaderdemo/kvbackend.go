package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const profileBucket = "profile"

// openBoltDB opens (creating if absent) a bbolt database at path,
// grounded on UnAfraid-wg-ui's datastore.NewBBoltDB.
func openBoltDB(path string, timeout time.Duration) (*bbolt.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	return db, nil
}

func seedProfiles(db *bbolt.DB, profiles map[string]string) error {
	return db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(profileBucket))
		if err != nil {
			return err
		}
		for id, name := range profiles {
			payload, err := json.Marshal(map[string]string{"id": id, "name": name})
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(id), payload); err != nil {
				return err
			}
		}
		return nil
	})
}

// profileFetch is the kv.FetchFunc the KV source batches through: one
// bbolt transaction per batch key, regardless of how many item keys
// (profile ids) it accumulated.
func profileFetch(db *bbolt.DB) func(ctx context.Context, batchKey interface{}, itemKeys []interface{}) (map[interface{}]interface{}, error) {
	return func(ctx context.Context, batchKey interface{}, itemKeys []interface{}) (map[interface{}]interface{}, error) {
		out := make(map[interface{}]interface{}, len(itemKeys))
		err := db.View(func(tx *bbolt.Tx) error {
			bucket := tx.Bucket([]byte(profileBucket))
			if bucket == nil {
				return nil
			}
			for _, key := range itemKeys {
				id, ok := key.(string)
				if !ok {
					continue
				}
				raw := bucket.Get([]byte(id))
				if raw == nil {
					continue
				}
				var profile map[string]string
				if err := json.Unmarshal(raw, &profile); err != nil {
					return fmt.Errorf("failed to unmarshal profile %s: %w", id, err)
				}
				out[id] = profile
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}
