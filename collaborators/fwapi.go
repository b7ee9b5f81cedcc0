package collaborators

import (
	"context"

	"github.com/Smithx10/sdc-vmapi/client"
)

// FWAPIClient talks to the firewall API: syncing a VM's firewall rule set.
type FWAPIClient struct{ *baseClient }

// NewFWAPIClient builds a FWAPIClient bound to rawurl.
func NewFWAPIClient(rawurl string) (*FWAPIClient, error) {
	base, err := newBaseClient("fwapi", rawurl)
	if err != nil {
		return nil, err
	}
	return &FWAPIClient{base}, nil
}

// UpdateRules replaces the firewall rule set attached to a VM.
func (c *FWAPIClient) UpdateRules(ctx context.Context, vmUUID string, rules []client.FirewallRule) error {
	return c.do(ctx, "PUT", "/vms/"+vmUUID+"/rules", nil, rules, nil)
}

// ValidateRule asks FWAPI to parse a rule string without persisting it.
// The Validator does not call it; it checks rules with a local recognizer.
func (c *FWAPIClient) ValidateRule(ctx context.Context, rule string) error {
	body := map[string]string{"rule": rule}
	return c.do(ctx, "POST", "/rules/validate", nil, body, nil)
}
