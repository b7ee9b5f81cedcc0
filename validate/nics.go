package validate

import (
	"context"
)

// AddNicsRequest is the raw, unvalidated body of action=add_nics.
type AddNicsRequest struct {
	VMUUID   string
	OwnerUUID string
	Networks []NetworkRef
}

// AddNics validates action=add_nics, resolving every network reference
// the same way Provision does.
func (v *Validator) AddNics(ctx context.Context, req AddNicsRequest) (*AddNicsParams, error) {
	if req.VMUUID == "" || !isUUID(req.VMUUID) {
		return nil, validationFailed("uuid is required", FieldError{Field: "uuid", Code: "Missing", Message: "a resolvable uuid is required in the path"})
	}
	if len(req.Networks) == 0 {
		return nil, validationFailed("networks is required", FieldError{Field: "networks", Code: "Missing", Message: "networks is required"})
	}

	resolved := make([]NetworkRef, 0, len(req.Networks))
	for _, n := range req.Networks {
		uuid, err := v.resolveNetwork(ctx, req.OwnerUUID, n)
		if err != nil {
			return nil, err
		}
		if fieldErr := v.checkIPInUse(ctx, uuid, n.IP); fieldErr != nil {
			return nil, fieldErr
		}
		resolved = append(resolved, NetworkRef{UUID: uuid, IP: n.IP})
	}

	return &AddNicsParams{VMUUID: req.VMUUID, Networks: resolved}, nil
}

// RemoveNics validates action=remove_nics.
func (v *Validator) RemoveNics(vmUUID string, macs []string) (*RemoveNicsParams, error) {
	if vmUUID == "" || !isUUID(vmUUID) {
		return nil, validationFailed("uuid is required", FieldError{Field: "uuid", Code: "Missing", Message: "a resolvable uuid is required in the path"})
	}
	if len(macs) == 0 {
		return nil, validationFailed("macs is required", FieldError{Field: "macs", Code: "Missing", Message: "at least one mac is required"})
	}
	return &RemoveNicsParams{VMUUID: vmUUID, MACs: macs}, nil
}
