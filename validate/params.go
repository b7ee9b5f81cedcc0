package validate

// NetworkRef is a provision/add-nics network reference: either a uuid or
// a name resolved against the caller's visible networks.
type NetworkRef struct {
	UUID string `json:"uuid,omitempty"`
	Name string `json:"name,omitempty"`
	IP   string `json:"ip,omitempty"`
}

// Locality constrains placement relative to other VMs.
type Locality struct {
	Strict bool     `json:"strict,omitempty"`
	Near   []string `json:"near,omitempty"`
	Far    []string `json:"far,omitempty"`
}

// DiskParam is one disks[] entry for a bhyve/kvm provision.
type DiskParam struct {
	ImageUUID string  `json:"image_uuid,omitempty"`
	Size      uint64  `json:"size,omitempty"`
	Boot      bool    `json:"boot,omitempty"`
	Index     int     `json:"index"`
}

// FirewallRuleParam is one firewall_rules[] entry.
type FirewallRuleParam struct {
	UUID      string `json:"uuid"`
	Rule      string `json:"rule"`
	OwnerUUID string `json:"owner_uuid"`
	Enabled   bool   `json:"enabled"`
	Global    bool   `json:"global,omitempty"`
}

// ProvisionParams is the normalized record a validated POST /vms produces.
type ProvisionParams struct {
	OwnerUUID        string
	ImageUUID        string
	Brand            string
	Networks         []NetworkRef
	RAM              uint64
	BillingID        string
	Alias            string
	Locality         *Locality
	Disks            []DiskParam
	Tags             map[string]any
	CustomerMetadata map[string]string
	InternalMetadata map[string]string
	FirewallRules    []FirewallRuleParam
}

// UpdateParams is the normalized record for action=update.
type UpdateParams struct {
	VMUUID    string
	OwnerUUID string
	BillingID string
	Alias     string
	Autoboot  *bool
	Tags      map[string]any
}

// AddNicsParams is the normalized record for action=add_nics.
type AddNicsParams struct {
	VMUUID   string
	Networks []NetworkRef
}

// RemoveNicsParams is the normalized record for action=remove_nics.
type RemoveNicsParams struct {
	VMUUID string
	MACs   []string
}

// TagsParams is the normalized record for the tags endpoints.
type TagsParams struct {
	VMUUID string
	Op     string // "set" (POST), "replace" (PUT), "delete_key", "delete_all"
	Tags   map[string]any
	Key    string // for delete_key
}

// SnapshotParams is the normalized record for create/rollback/delete
// snapshot actions.
type SnapshotParams struct {
	VMUUID string
	Name   string
}

// ReprovisionParams is the normalized record for action=reprovision.
type ReprovisionParams struct {
	VMUUID    string
	ImageUUID string
}
