package validate

import (
	"context"
	"fmt"

	"github.com/Smithx10/sdc-vmapi/client"
)

// dockerBrands are brand values whose tag set is permitted to carry
// docker:label:com.docker.*/sdc_docker reserved tags at provision time.
var dockerBrands = map[string]bool{"docker": true, "lx": true}

// flexibleDiskBrands are brands where disks[] replaces quota (I7).
var flexibleDiskBrands = map[string]bool{"bhyve": true, "kvm": true}

// ProvisionRequest is the raw, unvalidated body of POST /vms.
type ProvisionRequest struct {
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

// Provision validates a POST /vms body, returning a normalized
// ProvisionParams or a composed *Error.
func (v *Validator) Provision(ctx context.Context, req ProvisionRequest) (*ProvisionParams, error) {
	var errs []FieldError

	if req.OwnerUUID == "" || !isUUID(req.OwnerUUID) {
		errs = append(errs, FieldError{Field: "owner_uuid", Code: "Missing", Message: "owner_uuid is required"})
	}
	if req.Brand == "" {
		errs = append(errs, FieldError{Field: "brand", Code: "Missing", Message: "brand is required"})
	}
	if len(req.Networks) == 0 {
		errs = append(errs, FieldError{Field: "networks", Code: "Missing", Message: "networks is required"})
	}
	if req.RAM == 0 {
		errs = append(errs, FieldError{Field: "ram", Code: "Missing", Message: "ram is required"})
	}
	if req.BillingID == "" {
		req.BillingID = client.ZeroUUID
	} else if !isUUID(req.BillingID) {
		errs = append(errs, FieldError{Field: "billing_id", Code: "Invalid", Message: "billing_id must be a uuid"})
	}

	if flexibleDiskBrands[req.Brand] {
		if len(req.Disks) == 0 {
			errs = append(errs, FieldError{Field: "disks", Code: "Missing", Message: "disks is required for brand " + req.Brand})
		} else {
			errs = append(errs, validateDisks(req.Disks)...)
		}
	} else if req.ImageUUID == "" {
		errs = append(errs, FieldError{Field: "image_uuid", Code: "Missing", Message: "image_uuid is required"})
	}

	if req.Locality != nil {
		if !isUUIDSlice(req.Locality.Near) || !isUUIDSlice(req.Locality.Far) {
			errs = append(errs, FieldError{Field: "locality", Code: "Invalid", Message: "locality contains malformed UUID"})
		}
	}

	errs = append(errs, validateTags(req.Tags, dockerBrands[req.Brand])...)
	errs = append(errs, validateFirewallRules(req.FirewallRules)...)

	if len(errs) > 0 {
		return nil, validationFailed("provision request failed validation", errs...)
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

	return &ProvisionParams{
		OwnerUUID:        req.OwnerUUID,
		ImageUUID:        req.ImageUUID,
		Brand:            req.Brand,
		Networks:         resolved,
		RAM:              req.RAM,
		BillingID:        req.BillingID,
		Alias:            req.Alias,
		Locality:         req.Locality,
		Disks:            req.Disks,
		Tags:             req.Tags,
		CustomerMetadata: req.CustomerMetadata,
		InternalMetadata: req.InternalMetadata,
		FirewallRules:    req.FirewallRules,
	}, nil
}

// validateDisks checks disks[] for bhyve/kvm brands (I7): exactly one
// boot disk, every disk has a positive size unless it references an
// image_uuid (whose dataset size is authoritative instead).
func validateDisks(disks []DiskParam) []FieldError {
	var errs []FieldError
	bootCount := 0
	for i, d := range disks {
		if d.Boot {
			bootCount++
		}
		if d.ImageUUID == "" && d.Size == 0 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("disks[%d].size", i),
				Code:    CodeVMWithoutFlexibleDisk,
				Message: fmt.Sprintf("disks[%d] needs a positive size or an image_uuid", i),
			})
		}
	}
	if bootCount != 1 {
		errs = append(errs, FieldError{
			Field:   "disks",
			Code:    CodeVMWithoutFlexibleDisk,
			Message: fmt.Sprintf("exactly one disk must have boot=true, found %d", bootCount),
		})
	}
	return errs
}
