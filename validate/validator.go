package validate

import (
	"context"
	"fmt"

	"github.com/Smithx10/sdc-vmapi/collaborators"
)

// Validator holds the collaborator clients needed to resolve references
// and check cross-service invariants while validating a request: network
// lookups (NAPI), server capacity (CNAPI), and package resolution (PAPI).
type Validator struct {
	NAPI  *collaborators.NAPIClient
	CNAPI *collaborators.CNAPIClient
	PAPI  *collaborators.PAPIClient
}

// New returns a Validator bound to bundle's relevant clients.
func New(bundle *collaborators.Bundle) *Validator {
	return &Validator{NAPI: bundle.NAPI, CNAPI: bundle.CNAPI, PAPI: bundle.PAPI}
}

// resolveNetwork resolves a NetworkRef to its canonical uuid, surfacing the
// exact §4.2 UnprocessableEntityError message on an unknown reference.
func (v *Validator) resolveNetwork(ctx context.Context, ownerUUID string, ref NetworkRef) (string, error) {
	if ref.UUID != "" {
		if _, err := v.NAPI.GetNetwork(ctx, ref.UUID); err != nil {
			return "", unprocessableEntity(fmt.Sprintf(`No such Network or Pool with id/name: "%s"`, ref.UUID))
		}
		return ref.UUID, nil
	}
	n, err := v.NAPI.FindNetworkByName(ctx, ownerUUID, ref.Name)
	if err != nil {
		return "", unprocessableEntity(fmt.Sprintf(`No such Network or Pool with id/name: "%s"`, ref.Name))
	}
	return n.UUID, nil
}

// checkIPInUse surfaces P5's exact InvalidParameters shape when a
// requested static IP is already assigned to another zone.
func (v *Validator) checkIPInUse(ctx context.Context, networkUUID, ip string) *Error {
	if ip == "" {
		return nil
	}
	owner, inUse, err := v.NAPI.IPInUse(ctx, networkUUID, ip)
	if err != nil || !inUse {
		return nil
	}
	return invalidParameters("requested ip already in use", FieldError{
		Type:  "zone",
		ID:    owner,
		Code:  "UsedBy",
		Field: "ip",
	})
}
