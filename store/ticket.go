package store

import (
	"encoding/json"

	"github.com/mistifyio/kvite"

	"github.com/Smithx10/sdc-vmapi/client"
)

// PutTicket inserts or replaces a waitlist ticket. Implements
// waitlist.Store.
func (s *VMStore) PutTicket(t *client.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Transaction(func(tx *kvite.Tx) error {
		b, err := tx.Bucket(bucketTickets)
		if err != nil {
			return err
		}
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		return b.Put(t.UUID, data)
	})
}

// DeleteTicket removes a ticket by uuid. Implements waitlist.Store.
func (s *VMStore) DeleteTicket(uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Transaction(func(tx *kvite.Tx) error {
		b, err := tx.Bucket(bucketTickets)
		if err != nil {
			return err
		}
		return b.Delete(uuid)
	})
}

// ListTickets returns every persisted ticket, used by waitlist.New to
// replay in-flight holders after a restart and by Kernel.Sweep.
// Implements waitlist.Store.
func (s *VMStore) ListTickets() ([]*client.Ticket, error) {
	var tickets []*client.Ticket
	err := s.db.Transaction(func(tx *kvite.Tx) error {
		b, err := tx.Bucket(bucketTickets)
		if err != nil {
			return err
		}
		return b.ForEach(func(_ string, data []byte) error {
			t := &client.Ticket{}
			if err := json.Unmarshal(data, t); err != nil {
				return err
			}
			tickets = append(tickets, t)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return tickets, nil
}
