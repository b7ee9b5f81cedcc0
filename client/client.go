package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
)

// Config configures the creation of a Client.
type Config struct {
	// Address is the host:port of the VM API.
	Address string
	// Scheme is the URI scheme for the VM API.
	Scheme string
	// HTTPClient is the client to use. The default is used if nil.
	HTTPClient *http.Client
}

// DefaultConfig returns a default Config.
func DefaultConfig() *Config {
	return &Config{
		Address:    "127.0.0.1:8080",
		Scheme:     "http",
		HTTPClient: http.DefaultClient,
	}
}

// Client is a thin HTTP client for the VM API.
type Client struct {
	config Config
}

// NewClient returns a new Client, filling unset fields from DefaultConfig.
func NewClient(cfg *Config) (*Client, error) {
	def := DefaultConfig()
	if cfg == nil {
		cfg = def
	}
	if cfg.Address == "" {
		cfg.Address = def.Address
	}
	if cfg.Scheme == "" {
		cfg.Scheme = def.Scheme
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = def.HTTPClient
	}
	return &Client{config: *cfg}, nil
}

// AsyncResult is the body returned for every accepted mutation.
type AsyncResult struct {
	VMUUID  string `json:"vm_uuid"`
	JobUUID string `json:"job_uuid"`
}

func (c *Client) doRequest(method, p string, query url.Values, body, out interface{}, expect int) error {
	u := url.URL{Scheme: c.config.Scheme, Host: c.config.Address, Path: p}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var req *http.Request
	var err error
	if body != nil {
		data, merr := json.Marshal(body)
		if merr != nil {
			return merr
		}
		req, err = http.NewRequest(method, u.String(), bytes.NewReader(data))
	} else {
		req, err = http.NewRequest(method, u.String(), nil)
	}
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != expect {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("vmapi: expected status %d but got %d: %s %s", expect, resp.StatusCode, apiErr.Code, apiErr.Message)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ListVMs lists VMs matching the given structured filters, query string,
// predicate, or pagination parameters.
func (c *Client) ListVMs(query url.Values) ([]*VM, error) {
	vms := make([]*VM, 0)
	if err := c.doRequest("GET", "/vms", query, nil, &vms, http.StatusOK); err != nil {
		return nil, err
	}
	return vms, nil
}

// GetVM retrieves a single VM by uuid.
func (c *Client) GetVM(uuid string) (*VM, error) {
	var v VM
	if err := c.doRequest("GET", path.Join("/vms", uuid), nil, nil, &v, http.StatusOK); err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateVM submits a provision request and returns the accepted job.
func (c *Client) CreateVM(params map[string]interface{}) (*AsyncResult, error) {
	var res AsyncResult
	if err := c.doRequest("POST", "/vms", nil, params, &res, http.StatusAccepted); err != nil {
		return nil, err
	}
	return &res, nil
}

// PostVM submits a named action against an existing VM (start, stop,
// reboot, update, add_nics, remove_nics, create_snapshot,
// rollback_snapshot, delete_snapshot, reprovision, migrate, …).
func (c *Client) PostVM(uuid, action string, params map[string]interface{}) (*AsyncResult, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	params["action"] = action
	var res AsyncResult
	if err := c.doRequest("POST", path.Join("/vms", uuid), nil, params, &res, http.StatusAccepted); err != nil {
		return nil, err
	}
	return &res, nil
}

// DeleteVM submits a destroy request.
func (c *Client) DeleteVM(uuid string) (*AsyncResult, error) {
	var res AsyncResult
	if err := c.doRequest("DELETE", path.Join("/vms", uuid), nil, nil, &res, http.StatusAccepted); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetJob retrieves a single job by uuid.
func (c *Client) GetJob(uuid string) (*Job, error) {
	var j Job
	if err := c.doRequest("GET", path.Join("/jobs", uuid), nil, nil, &j, http.StatusOK); err != nil {
		return nil, err
	}
	return &j, nil
}

// ListJobs lists jobs matching the given filters (task, vm_uuid, execution).
func (c *Client) ListJobs(query url.Values) ([]*Job, error) {
	jobs := make([]*Job, 0)
	if err := c.doRequest("GET", "/jobs", query, nil, &jobs, http.StatusOK); err != nil {
		return nil, err
	}
	return jobs, nil
}
