package collaborators

import "context"

// CNAPIClient talks to the compute-node agent: task-based VM agent RPC for
// provisioning, lifecycle actions, and capacity queries. CNAPI itself is
// out of scope (spec.md §1); this client only shapes and ships requests to
// it.
type CNAPIClient struct{ *baseClient }

// NewCNAPIClient builds a CNAPIClient bound to rawurl.
func NewCNAPIClient(rawurl string) (*CNAPIClient, error) {
	base, err := newBaseClient("cnapi", rawurl)
	if err != nil {
		return nil, err
	}
	return &CNAPIClient{base}, nil
}

// ServerCapacity is the advertised free capacity of a compute node, used by
// the Validator's resize-up check.
type ServerCapacity struct {
	ServerUUID      string `json:"server_uuid"`
	AvailableRAM    int64  `json:"available_ram"`
	AvailableDiskGB int64  `json:"available_disk_gb"`
}

// GetServerCapacity retrieves the advertised capacity of a compute node.
func (c *CNAPIClient) GetServerCapacity(ctx context.Context, serverUUID string) (*ServerCapacity, error) {
	var sc ServerCapacity
	if err := c.do(ctx, "GET", "/servers/"+serverUUID+"/capacity", nil, nil, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// ProvisionPayload is the CNAPI-facing zone creation request assembled by
// the provision pipeline's "prepare CNAPI payload" task.
type ProvisionPayload struct {
	VMUUID   string         `json:"vm_uuid"`
	Brand    string         `json:"brand"`
	RAM      uint64         `json:"ram"`
	Quota    uint64         `json:"quota,omitempty"`
	Image    string         `json:"image_uuid,omitempty"`
	Nics     []interface{}  `json:"nics"`
	Disks    []interface{}  `json:"disks,omitempty"`
	Resolvers []string      `json:"resolvers,omitempty"`
	Routes    map[string]string `json:"routes,omitempty"`
	Extra     map[string]interface{} `json:"-"`
}

// TaskResponse is a CNAPI async task handle; callers poll WaitTask.
type TaskResponse struct {
	TaskID string `json:"task_id"`
}

// Provision submits a zone creation request to a compute node.
func (c *CNAPIClient) Provision(ctx context.Context, serverUUID string, payload ProvisionPayload) (*TaskResponse, error) {
	var t TaskResponse
	if err := c.do(ctx, "POST", "/servers/"+serverUUID+"/vms", nil, payload, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Action submits a lifecycle action (start/stop/reboot/…) for an existing
// zone.
func (c *CNAPIClient) Action(ctx context.Context, serverUUID, vmUUID, action string, params map[string]interface{}) (*TaskResponse, error) {
	var t TaskResponse
	if err := c.do(ctx, "POST", "/servers/"+serverUUID+"/vms/"+vmUUID+"/"+action, nil, params, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// TaskStatus is the polled state of a CNAPI task.
type TaskStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"` // "active", "complete", "failure"
	Error  string `json:"error,omitempty"`
}

// WaitTask polls a CNAPI task until it reaches a terminal status.
func (c *CNAPIClient) WaitTask(ctx context.Context, taskID string) (*TaskStatus, error) {
	var ts TaskStatus
	if err := c.do(ctx, "GET", "/tasks/"+taskID+"/wait", nil, nil, &ts); err != nil {
		return nil, err
	}
	return &ts, nil
}

// RefreshVM re-reads the compute node's authoritative view of a zone, used
// by the Reconciler on pipeline cancellation.
func (c *CNAPIClient) RefreshVM(ctx context.Context, serverUUID, vmUUID string) (map[string]interface{}, error) {
	var vm map[string]interface{}
	if err := c.do(ctx, "GET", "/servers/"+serverUUID+"/vms/"+vmUUID, nil, nil, &vm); err != nil {
		return nil, err
	}
	return vm, nil
}
