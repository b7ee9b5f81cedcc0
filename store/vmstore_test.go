package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Smithx10/sdc-vmapi/client"
	"github.com/Smithx10/sdc-vmapi/query"
)

func openTestStore(t *testing.T) *VMStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "vmapi.db"))
	require.NoError(t, err)
	return s
}

func putVM(t *testing.T, s *VMStore, uuid, owner, brand, state string, ram uint64, age time.Duration) *client.VM {
	t.Helper()
	v := &client.VM{
		UUID: uuid, OwnerUUID: owner, Brand: brand, State: state, RAM: ram,
		CreateTimestamp: time.Now().Add(-age),
	}
	require.NoError(t, s.PutVM(v))
	return v
}

func TestPutGetDeleteVM(t *testing.T) {
	s := openTestStore(t)
	v := putVM(t, s, "vm-1", "owner-1", "kvm", client.StateRunning, 256, 0)

	got, err := s.GetVM(v.UUID)
	require.NoError(t, err)
	require.Equal(t, v.OwnerUUID, got.OwnerUUID)

	require.NoError(t, s.DeleteVM(v.UUID))
	_, err = s.GetVM(v.UUID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListFiltersByStructuredField(t *testing.T) {
	s := openTestStore(t)
	putVM(t, s, "vm-1", "owner-1", "kvm", client.StateRunning, 256, time.Hour)
	putVM(t, s, "vm-2", "owner-1", "bhyve", client.StateRunning, 512, 0)
	putVM(t, s, "vm-3", "owner-2", "kvm", client.StateStopped, 256, 0)

	res, err := s.List(ListOptions{Filter: map[string]string{"owner_uuid": "owner-1"}})
	require.NoError(t, err)
	require.Equal(t, 2, res.Total)
	require.Len(t, res.VMs, 2)
}

func TestListActiveShortcutExcludesDestroyed(t *testing.T) {
	s := openTestStore(t)
	putVM(t, s, "vm-1", "owner-1", "kvm", client.StateRunning, 256, 0)
	putVM(t, s, "vm-2", "owner-1", "kvm", client.StateDestroyed, 256, 0)

	res, err := s.List(ListOptions{Active: true})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	require.Equal(t, "vm-1", res.VMs[0].UUID)
}

func TestListOffsetPastEndIsEmptyNotError(t *testing.T) {
	s := openTestStore(t)
	putVM(t, s, "vm-1", "owner-1", "kvm", client.StateRunning, 256, 0)

	res, err := s.List(ListOptions{Offset: 10})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	require.Empty(t, res.VMs)
}

func TestListTotalCountedBeforePagination(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		putVM(t, s, "vm-"+string(rune('a'+i)), "owner-1", "kvm", client.StateRunning, 256, time.Duration(i)*time.Minute)
	}

	res, err := s.List(ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 5, res.Total)
	require.Len(t, res.VMs, 2)
}

func TestListDefaultSortIsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	putVM(t, s, "old", "owner-1", "kvm", client.StateRunning, 256, time.Hour)
	putVM(t, s, "new", "owner-1", "kvm", client.StateRunning, 256, 0)

	res, err := s.List(ListOptions{})
	require.NoError(t, err)
	require.Equal(t, "new", res.VMs[0].UUID)
	require.Equal(t, "old", res.VMs[1].UUID)
}

func TestListWithCompiledExpr(t *testing.T) {
	s := openTestStore(t)
	putVM(t, s, "vm-1", "owner-1", "kvm", client.StateRunning, 256, 0)
	putVM(t, s, "vm-2", "owner-1", "kvm", client.StateRunning, 512, 0)

	res, err := s.List(ListOptions{Expr: &query.Expr{Op: query.OpGe, Field: "ram", Value: float64(300)}})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	require.Equal(t, "vm-2", res.VMs[0].UUID)
}

func TestListMatchesSyntheticTagField(t *testing.T) {
	s := openTestStore(t)
	v := putVM(t, s, "vm-1", "owner-1", "kvm", client.StateRunning, 256, 0)
	v.Tags = map[string]any{"smartdc_type": "core"}
	require.NoError(t, s.PutVM(v))
	putVM(t, s, "vm-2", "owner-1", "kvm", client.StateRunning, 256, 0)

	res, err := s.List(ListOptions{Filter: map[string]string{"tag.smartdc_type": "core"}})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	require.Equal(t, "vm-1", res.VMs[0].UUID)
}

func TestProjectDropsUnlistedFields(t *testing.T) {
	v := &client.VM{UUID: "vm-1", OwnerUUID: "owner-1", Brand: "kvm", RAM: 256}
	out, err := Project(v, []string{"uuid", "ram"})
	require.NoError(t, err)
	_, hasOwner := out["owner_uuid"]
	require.False(t, hasOwner, "owner_uuid should be absent, not merely null")
	require.Equal(t, "vm-1", out["uuid"])
}

func TestProjectEmptyFieldsReturnsEverything(t *testing.T) {
	v := &client.VM{UUID: "vm-1", OwnerUUID: "owner-1"}
	out, err := Project(v, nil)
	require.NoError(t, err)
	require.Contains(t, out, "owner_uuid")
}
