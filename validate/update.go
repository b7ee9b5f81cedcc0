package validate

import (
	"context"
	"fmt"

	"github.com/Smithx10/sdc-vmapi/client"
)

// UpdateRequest is the raw, unvalidated body of a POST /vms/:uuid update
// action.
type UpdateRequest struct {
	VMUUID    string
	OwnerUUID string
	BillingID string
	Alias     string
	Autoboot  *bool
	Tags      map[string]any
}

// Update validates action=update against the VM's current state. A
// resize (billing_id change) consults CNAPI's advertised server capacity
// only when the new package requests more RAM than the current one
// (resize-up); resize-down is always permitted, matching source behavior
// (spec.md §9 Open Question 2).
func (v *Validator) Update(ctx context.Context, req UpdateRequest, current *client.VM, newPackageRAM uint64) (*UpdateParams, error) {
	if req.VMUUID == "" || !isUUID(req.VMUUID) {
		return nil, validationFailed("uuid is required for update", FieldError{Field: "uuid", Code: "Missing", Message: "a resolvable uuid is required in the path"})
	}
	if req.OwnerUUID == "" {
		return nil, validationFailed("owner_uuid cannot be empty", FieldError{Field: "owner_uuid", Code: "Invalid", Message: "owner_uuid cannot be empty"})
	}

	if req.BillingID != "" && req.BillingID != current.BillingID {
		if newPackageRAM > current.RAM {
			additional := newPackageRAM - current.RAM
			capacity, err := v.CNAPI.GetServerCapacity(ctx, current.ServerUUID)
			if err != nil {
				return nil, fmt.Errorf("checking server capacity for resize: %w", err)
			}
			if int64(additional) > capacity.AvailableRAM {
				return nil, validationFailed("resize exceeds available capacity", FieldError{
					Field:   "ram",
					Code:    "InsufficientCapacity",
					Message: fmt.Sprintf("Required additional RAM (%d) exceeds the server's available RAM (%d)", additional, capacity.AvailableRAM),
				})
			}
		}
	}

	var tagErrs []FieldError
	if req.Tags != nil {
		tagErrs = validateTags(req.Tags, false)
	}
	if len(tagErrs) > 0 {
		return nil, validationFailed("tags failed validation", tagErrs...)
	}

	return &UpdateParams{
		VMUUID:    req.VMUUID,
		OwnerUUID: req.OwnerUUID,
		BillingID: req.BillingID,
		Alias:     req.Alias,
		Autoboot:  req.Autoboot,
		Tags:      req.Tags,
	}, nil
}
