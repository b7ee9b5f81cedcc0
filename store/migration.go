package store

import (
	"encoding/json"

	"github.com/mistifyio/kvite"

	"github.com/Smithx10/sdc-vmapi/client"
)

// PutMigration inserts or replaces the migration record for a VM. A VM has
// at most one in-flight migration at a time, so the VM uuid is the key.
func (s *VMStore) PutMigration(m *client.Migration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Transaction(func(tx *kvite.Tx) error {
		b, err := tx.Bucket(bucketMigrations)
		if err != nil {
			return err
		}
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return b.Put(m.VMUUID, data)
	})
}

// GetMigration retrieves the in-flight or most recent migration record
// for a VM.
func (s *VMStore) GetMigration(vmUUID string) (*client.Migration, error) {
	var m *client.Migration
	err := s.db.Transaction(func(tx *kvite.Tx) error {
		b, err := tx.Bucket(bucketMigrations)
		if err != nil {
			return err
		}
		data, err := b.Get(vmUUID)
		if err != nil {
			return err
		}
		if data == nil {
			return ErrNotFound
		}
		m = &client.Migration{}
		return json.Unmarshal(data, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}
