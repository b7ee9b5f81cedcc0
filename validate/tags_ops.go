package validate

import "github.com/Smithx10/sdc-vmapi/client"

// TagsOp validates a PUT/POST/DELETE against a VM's tag set, enforcing
// the reserved-tag and triton.* policy from I5/§4.2.
func (v *Validator) TagsOp(vmUUID string, op string, tags map[string]any, key string, current *client.VM) (*TagsParams, error) {
	if vmUUID == "" || !isUUID(vmUUID) {
		return nil, validationFailed("uuid is required", FieldError{Field: "uuid", Code: "Missing", Message: "a resolvable uuid is required in the path"})
	}

	isDockerVM := dockerBrands[current.Brand]

	switch op {
	case "set", "replace":
		if errs := validateTags(tags, false); len(errs) > 0 {
			return nil, validationFailed("tags failed validation", errs...)
		}
	case "delete_key":
		if fieldErr := validateTagDeletion(key, isDockerVM); fieldErr != nil {
			return nil, validationFailed("tag deletion failed validation", *fieldErr)
		}
	case "delete_all":
		var errs []FieldError
		for existingKey := range current.Tags {
			if fieldErr := validateTagDeletion(existingKey, isDockerVM); fieldErr != nil {
				errs = append(errs, *fieldErr)
			}
		}
		if len(errs) > 0 {
			return nil, validationFailed("tag deletion failed validation", errs...)
		}
	}

	return &TagsParams{VMUUID: vmUUID, Op: op, Tags: tags, Key: key}, nil
}
