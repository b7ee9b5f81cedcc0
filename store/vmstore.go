// Package store implements the VM Store & Query component (spec.md §4.5):
// persisted VMs, jobs, migrations, and tickets in an embedded kvite
// database, plus the filter/predicate/pagination surface GET /vms exposes.
//
// It generalizes the teacher's flat db.Transaction + bucket.ForEach scan
// (guest.go's ListGuests) into a query compiler shared with package query.
package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mistifyio/kvite"

	"github.com/Smithx10/sdc-vmapi/client"
	"github.com/Smithx10/sdc-vmapi/query"
)

// ErrNotFound is returned by Get-style lookups when the key is absent.
var ErrNotFound = fmt.Errorf("store: not found")

const (
	bucketVMs        = "vms"
	bucketVMRoleTags = "vm_role_tags"
	bucketMigrations = "vm_migrations"
	bucketJobs       = "jobs"
	bucketTickets    = "tickets"
)

// VMStore is the kvite-backed persistence and query layer for VMs, jobs,
// migrations, and waitlist tickets.
type VMStore struct {
	db *kvite.DB

	// mu serializes PutVM calls within this process; kvite's own
	// transactions guard storage-level atomicity. Writes carry no
	// revision and are not compared against the stored row: the last
	// PutVM wins.
	mu sync.Mutex
}

// Open opens (creating if absent) the kvite database at path.
func Open(path string) (*VMStore, error) {
	db, err := kvite.Open(path, "vmapi")
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	return &VMStore{db: db}, nil
}

// PutVM inserts or replaces a VM row.
func (s *VMStore) PutVM(v *client.VM) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Transaction(func(tx *kvite.Tx) error {
		b, err := tx.Bucket(bucketVMs)
		if err != nil {
			return err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return b.Put(v.UUID, data)
	})
}

// GetVM retrieves a VM by uuid. Returns a nil VM and ErrNotFound when
// absent.
func (s *VMStore) GetVM(uuid string) (*client.VM, error) {
	var v *client.VM
	err := s.db.Transaction(func(tx *kvite.Tx) error {
		b, err := tx.Bucket(bucketVMs)
		if err != nil {
			return err
		}
		data, err := b.Get(uuid)
		if err != nil {
			return err
		}
		if data == nil {
			return ErrNotFound
		}
		v = &client.VM{}
		return json.Unmarshal(data, v)
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// DeleteVM removes a VM row outright (used only by tests; production code
// marks VMs destroyed rather than deleting the row, per spec.md §4.3).
func (s *VMStore) DeleteVM(uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Transaction(func(tx *kvite.Tx) error {
		b, err := tx.Bucket(bucketVMs)
		if err != nil {
			return err
		}
		return b.Delete(uuid)
	})
}

// ListOptions binds the structured filters, compiled query.Expr (from
// either `query=` or `predicate=`), and pagination/projection parameters
// of a GET /vms call.
type ListOptions struct {
	Filter map[string]string // owner_uuid, brand, state, alias, ram, server_uuid, billing_id, tag.<key>
	Expr   *query.Expr       // compiled from query= or predicate=, already ANDed together by the caller
	Active bool              // state=active shortcut

	Fields []string // projection; nil/empty means "all fields"
	Sort   string   // field name; defaults to create_timestamp desc
	Limit  int
	Offset int
}

// ListResult is the page plus the total count before pagination, the
// value GET /vms reports via x-joyent-resource-count (P4).
type ListResult struct {
	VMs   []*client.VM
	Total int
}

// List evaluates opts against every persisted VM and returns the matching
// page plus the total matching count (computed before limit/offset is
// applied, per P3/P4).
func (s *VMStore) List(opts ListOptions) (*ListResult, error) {
	var all []*client.VM
	err := s.db.Transaction(func(tx *kvite.Tx) error {
		b, err := tx.Bucket(bucketVMs)
		if err != nil {
			return err
		}
		return b.ForEach(func(_ string, data []byte) error {
			v := &client.VM{}
			if err := json.Unmarshal(data, v); err != nil {
				return err
			}
			all = append(all, v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	matched := make([]*client.VM, 0, len(all))
	for _, v := range all {
		if matchesOptions(v, opts) {
			matched = append(matched, v)
		}
	}

	sortVMs(matched, opts.Sort)

	total := len(matched)
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	var page []*client.VM
	if offset >= total {
		page = []*client.VM{} // scenario/P3: offset past the end is empty, not an error
	} else {
		end := offset + limit
		if end > total {
			end = total
		}
		page = matched[offset:end]
	}

	return &ListResult{VMs: page, Total: total}, nil
}

func matchesOptions(v *client.VM, opts ListOptions) bool {
	if opts.Active && !v.Active() {
		return false
	}
	for field, want := range opts.Filter {
		got, ok := vmField(v, field)
		if !ok || fmt.Sprint(got) != want {
			return false
		}
	}
	if opts.Expr != nil && !query.Eval(opts.Expr, vmRow{v}) {
		return false
	}
	return true
}

func sortVMs(vms []*client.VM, sortField string) {
	if sortField == "" {
		sort.SliceStable(vms, func(i, j int) bool {
			return vms[i].CreateTimestamp.After(vms[j].CreateTimestamp)
		})
		return
	}
	desc := strings.HasPrefix(sortField, "-")
	field := strings.TrimPrefix(sortField, "-")
	sort.SliceStable(vms, func(i, j int) bool {
		a, _ := vmField(vms[i], field)
		b, _ := vmField(vms[j], field)
		less := fmt.Sprint(a) < fmt.Sprint(b)
		if desc {
			return !less
		}
		return less
	})
}

// vmRow adapts *client.VM to query.Row for Expr evaluation.
type vmRow struct{ v *client.VM }

func (r vmRow) Field(name string) (any, bool) { return vmField(r.v, name) }

// vmField resolves a filter/sort/query field name against a VM, including
// the synthetic "tag.<key>" fields the query compiler produces.
func vmField(v *client.VM, name string) (any, bool) {
	if strings.HasPrefix(name, "tag.") {
		key := strings.TrimPrefix(name, "tag.")
		val, ok := v.Tags[key]
		return val, ok
	}
	switch name {
	case "uuid":
		return v.UUID, true
	case "owner_uuid":
		return v.OwnerUUID, true
	case "brand":
		return v.Brand, true
	case "state":
		return v.State, true
	case "alias":
		return v.Alias, true
	case "billing_id":
		return v.BillingID, true
	case "server_uuid":
		return v.ServerUUID, true
	case "ram":
		return v.RAM, true
	case "create_timestamp":
		return v.CreateTimestamp, true
	default:
		return nil, false
	}
}

// Project drops every field not named in fields from v's JSON
// serialization — "absent, not null" per spec.md §4.5.
func Project(v *client.VM, fields []string) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var full map[string]any
	if err := json.Unmarshal(data, &full); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return full, nil
	}
	keep := make(map[string]any, len(fields))
	for _, f := range fields {
		if val, ok := full[f]; ok {
			keep[f] = val
		}
	}
	return keep, nil
}
