package validate

import "regexp"

// snapshotNamePattern matches ZFS snapshot-name constraints referenced
// implicitly by the original's downloadSnapshot/rollbackSnapshot flows.
var snapshotNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// Snapshot validates create/rollback/delete snapshot actions.
func (v *Validator) Snapshot(vmUUID, name string) (*SnapshotParams, error) {
	if vmUUID == "" || !isUUID(vmUUID) {
		return nil, validationFailed("uuid is required", FieldError{Field: "uuid", Code: "Missing", Message: "a resolvable uuid is required in the path"})
	}
	if name == "" || !snapshotNamePattern.MatchString(name) {
		return nil, validationFailed("snapshot name is invalid", FieldError{Field: "name", Code: "Invalid", Message: "snapshot name must match [a-zA-Z0-9][a-zA-Z0-9_.-]*"})
	}
	return &SnapshotParams{VMUUID: vmUUID, Name: name}, nil
}

// Reprovision validates action=reprovision.
func (v *Validator) Reprovision(vmUUID, imageUUID string) (*ReprovisionParams, error) {
	if vmUUID == "" || !isUUID(vmUUID) {
		return nil, validationFailed("uuid is required", FieldError{Field: "uuid", Code: "Missing", Message: "a resolvable uuid is required in the path"})
	}
	if imageUUID == "" || !isUUID(imageUUID) {
		return nil, validationFailed("image_uuid is required", FieldError{Field: "image_uuid", Code: "Missing", Message: "image_uuid is required"})
	}
	return &ReprovisionParams{VMUUID: vmUUID, ImageUUID: imageUUID}, nil
}
