package collaborators

import "context"

// IMGAPIClient talks to the image service: availability checks and
// per-image provisioning metadata (generate_passwords, brand compatibility).
type IMGAPIClient struct{ *baseClient }

// NewIMGAPIClient builds an IMGAPIClient bound to rawurl.
func NewIMGAPIClient(rawurl string) (*IMGAPIClient, error) {
	base, err := newBaseClient("imgapi", rawurl)
	if err != nil {
		return nil, err
	}
	return &IMGAPIClient{base}, nil
}

// Image is the subset of image manifest fields the provision pipeline
// consults.
type Image struct {
	UUID              string `json:"uuid"`
	Name              string `json:"name"`
	State             string `json:"state"` // "active", "unactivated", "failed", "disabled"
	GeneratePasswords bool   `json:"generate_passwords"`
	Type              string `json:"type"` // "zone-dataset", "lx-dataset", "zvol", …
}

// GetImage retrieves an image manifest by uuid.
func (c *IMGAPIClient) GetImage(ctx context.Context, uuid string) (*Image, error) {
	var img Image
	if err := c.do(ctx, "GET", "/images/"+uuid, nil, nil, &img); err != nil {
		return nil, err
	}
	return &img, nil
}

// EnsureOnServer asks IMGAPI to make sure an image's dataset is present on
// a given compute node before CNAPI tries to provision from it.
func (c *IMGAPIClient) EnsureOnServer(ctx context.Context, imageUUID, serverUUID string) (*TaskResponse, error) {
	var t TaskResponse
	body := map[string]string{"server_uuid": serverUUID}
	if err := c.do(ctx, "POST", "/images/"+imageUUID+"/ensure", nil, body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
