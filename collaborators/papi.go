package collaborators

import "context"

// PAPIClient talks to the package catalog: resolving a billing_id into
// concrete resource envelope values (RAM, CPU, quota).
type PAPIClient struct{ *baseClient }

// NewPAPIClient builds a PAPIClient bound to rawurl.
func NewPAPIClient(rawurl string) (*PAPIClient, error) {
	base, err := newBaseClient("papi", rawurl)
	if err != nil {
		return nil, err
	}
	return &PAPIClient{base}, nil
}

// Package is a named resource envelope referenced by VM.BillingID.
type Package struct {
	UUID      string `json:"uuid"`
	Name      string `json:"name"`
	RAM       uint64 `json:"max_physical_memory"`
	CPUCap    uint64 `json:"cpu_cap"`
	Quota     uint64 `json:"quota"`
	MaxSwap   uint64 `json:"max_swap"`
	ZFSIOPrio uint64 `json:"zfs_io_priority"`
}

// GetPackage resolves a billing_id into its package definition.
func (c *PAPIClient) GetPackage(ctx context.Context, billingID string) (*Package, error) {
	var p Package
	if err := c.do(ctx, "GET", "/packages/"+billingID, nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
