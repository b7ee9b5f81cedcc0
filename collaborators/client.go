// Package collaborators holds typed HTTP clients for the external services
// the workflow composer and reconciler depend on: NAPI, CNAPI, FWAPI,
// IMGAPI, PAPI, WFAPI, VOLAPI, and UFDS. None of these services are
// implemented here — this package only knows how to talk to them.
//
// Every client is built on a shared retryable base (the teacher's
// rpc.Client talked JSON-RPC to a single sub-agent; these talk plain REST
// JSON to independently versioned services, so retries and per-call
// request-id propagation matter more here than a single hand-rolled POST).
package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"
)

// baseClient is embedded by every collaborator-specific client.
type baseClient struct {
	name string
	base *url.URL
	http *retryablehttp.Client
}

// newBaseClient builds a retrying HTTP client bound to a service's base URL.
func newBaseClient(name, rawurl string) (*baseClient, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid url %q: %w", name, rawurl, err)
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil

	return &baseClient{name: name, base: u, http: rc}, nil
}

// do issues a request to path, JSON-encoding body (if non-nil) and
// JSON-decoding into out (if non-nil), propagating the caller's
// x-request-id. A non-2xx response is returned as a *StatusError.
func (c *baseClient) do(ctx context.Context, method, p string, query url.Values, body, out interface{}) error {
	u := *c.base
	u.Path = path.Join(u.Path, p)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok && reqID != "" {
		req.Header.Set("x-request-id", reqID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &StatusError{Service: c.name, StatusCode: resp.StatusCode, Code: apiErr.Code, Message: apiErr.Message}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// StatusError is returned when a collaborator responds with a non-2xx
// status.
type StatusError struct {
	Service    string
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s: %s", e.Service, e.StatusCode, e.Code, e.Message)
}

// NotFound reports whether err is a StatusError for a 404 response.
func NotFound(err error) bool {
	se, ok := err.(*StatusError)
	return ok && se.StatusCode == http.StatusNotFound
}

type requestIDKey struct{}

// WithRequestID attaches a request id to ctx for propagation to every
// outbound collaborator call made with that context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// Bundle is the dependency-injected set of collaborator clients passed
// into the composition root and, from there, into every workflow task's
// job context — replacing the teacher's global service-map-as-singleton
// pattern (config.Services / Context.Services).
type Bundle struct {
	NAPI   *NAPIClient
	CNAPI  *CNAPIClient
	FWAPI  *FWAPIClient
	IMGAPI *IMGAPIClient
	PAPI   *PAPIClient
	WFAPI  *WFAPIClient
	VOLAPI *VOLAPIClient
	UFDS   *UFDSClient
}

// NewBundle constructs a Bundle from a map of service name to base URL,
// the shape config.Config.Collaborators produces.
func NewBundle(urls map[string]string) (*Bundle, error) {
	b := &Bundle{}
	var err error

	if b.NAPI, err = NewNAPIClient(urls["napi"]); err != nil {
		return nil, err
	}
	if b.CNAPI, err = NewCNAPIClient(urls["cnapi"]); err != nil {
		return nil, err
	}
	if b.FWAPI, err = NewFWAPIClient(urls["fwapi"]); err != nil {
		return nil, err
	}
	if b.IMGAPI, err = NewIMGAPIClient(urls["imgapi"]); err != nil {
		return nil, err
	}
	if b.PAPI, err = NewPAPIClient(urls["papi"]); err != nil {
		return nil, err
	}
	if b.WFAPI, err = NewWFAPIClient(urls["wfapi"]); err != nil {
		return nil, err
	}
	if b.VOLAPI, err = NewVOLAPIClient(urls["volapi"]); err != nil {
		return nil, err
	}
	if b.UFDS, err = NewUFDSClient(urls["ufds"]); err != nil {
		return nil, err
	}

	log.WithField("services", len(urls)).Info("collaborator bundle constructed")
	return b, nil
}
