package collaborators

import "context"

// VOLAPIClient talks to the volume API: reserving and referencing shared
// volumes attached to a VM during provisioning.
type VOLAPIClient struct{ *baseClient }

// NewVOLAPIClient builds a VOLAPIClient bound to rawurl.
func NewVOLAPIClient(rawurl string) (*VOLAPIClient, error) {
	base, err := newBaseClient("volapi", rawurl)
	if err != nil {
		return nil, err
	}
	return &VOLAPIClient{base}, nil
}

// Volume is a shared storage volume reference.
type Volume struct {
	UUID      string `json:"uuid"`
	Name      string `json:"name"`
	OwnerUUID string `json:"owner_uuid"`
	State     string `json:"state"`
}

// AddReference registers vmUUID as a consumer of volumeUUID so VOLAPI can
// refuse deletion while referenced.
func (c *VOLAPIClient) AddReference(ctx context.Context, volumeUUID, vmUUID string) error {
	body := map[string]string{"vm_uuid": vmUUID}
	return c.do(ctx, "POST", "/volumes/"+volumeUUID+"/references", nil, body, nil)
}

// RemoveReference unregisters vmUUID as a consumer of volumeUUID.
func (c *VOLAPIClient) RemoveReference(ctx context.Context, volumeUUID, vmUUID string) error {
	return c.do(ctx, "DELETE", "/volumes/"+volumeUUID+"/references/"+vmUUID, nil, nil, nil)
}

// GetVolume resolves a volume reference by uuid.
func (c *VOLAPIClient) GetVolume(ctx context.Context, uuid string) (*Volume, error) {
	var v Volume
	if err := c.do(ctx, "GET", "/volumes/"+uuid, nil, nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
