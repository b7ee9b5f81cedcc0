// Package httpapi implements the Request Gateway (component A): routing,
// x-request-id/x-context propagation, and response shaping over gorilla/mux,
// mirroring the teacher's ContextHandler/GuestHandler chain built with
// alice, gorilla/handlers, and bakins/net-http-recover.
package httpapi

import (
	"encoding/json"
	"net/http"
	"os"

	recovery "github.com/bakins/net-http-recover"
	"github.com/google/uuid"
	"github.com/gorilla/context"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	log "github.com/sirupsen/logrus"

	"github.com/Smithx10/sdc-vmapi/client"
	"github.com/Smithx10/sdc-vmapi/collaborators"
	"github.com/Smithx10/sdc-vmapi/reconcile"
	"github.com/Smithx10/sdc-vmapi/store"
	"github.com/Smithx10/sdc-vmapi/validate"
	"github.com/Smithx10/sdc-vmapi/workflow"
)

type contextKey int

const (
	keyRequestContext contextKey = iota
	keyVM
)

// requestContext carries the caller identity and request id extracted from
// x-context/x-request-id, threaded through to every Job this request
// creates (P1).
type requestContext struct {
	RequestID string
	Caller    client.CallerContext
	Params    map[string]any
}

// Gateway wires the Validator, Composer, Store, JobLog, and Reconciler
// into an http.Handler.
type Gateway struct {
	Validator  *validate.Validator
	Composer   *workflow.Composer
	Store      *store.VMStore
	JobLog     *store.JobLog
	Reconciler *reconcile.Reconciler
	WFAPIURL   string
}

// Router builds the full mux.Router + middleware chain described in
// spec.md §6.
func (g *Gateway) Router() http.Handler {
	r := mux.NewRouter()
	r.StrictSlash(true)

	base := alice.New(
		g.contextMiddleware,
		func(h http.Handler) http.Handler {
			return handlers.CombinedLoggingHandler(os.Stdout, h)
		},
		handlers.CompressHandler,
		func(h http.Handler) http.Handler {
			return recovery.Handler(os.Stderr, h, true)
		},
	)
	withVM := base.Append(g.vmMiddleware)

	r.Handle("/vms", base.ThenFunc(g.listVMs)).Methods("GET", "HEAD")
	r.Handle("/vms", base.ThenFunc(g.createVM)).Methods("POST")
	r.Handle("/vms/{uuid}", withVM.ThenFunc(g.getVM)).Methods("GET")
	r.Handle("/vms/{uuid}", withVM.ThenFunc(g.postVMAction)).Methods("POST")
	r.Handle("/vms/{uuid}", withVM.ThenFunc(g.destroyVM)).Methods("DELETE")

	r.Handle("/vms/{uuid}/tags", withVM.ThenFunc(g.getTags)).Methods("GET")
	r.Handle("/vms/{uuid}/tags", withVM.ThenFunc(g.postTags)).Methods("POST")
	r.Handle("/vms/{uuid}/tags", withVM.ThenFunc(g.putTags)).Methods("PUT")
	r.Handle("/vms/{uuid}/tags", withVM.ThenFunc(g.deleteAllTags)).Methods("DELETE")
	r.Handle("/vms/{uuid}/tags/{key}", withVM.ThenFunc(g.getTag)).Methods("GET")
	r.Handle("/vms/{uuid}/tags/{key}", withVM.ThenFunc(g.deleteTag)).Methods("DELETE")

	r.Handle("/vms/{uuid}/jobs", withVM.ThenFunc(g.listVMJobs)).Methods("GET")
	r.Handle("/jobs", base.ThenFunc(g.listJobs)).Methods("GET")
	r.Handle("/jobs/{uuid}", base.ThenFunc(g.getJob)).Methods("GET")

	return r
}

// contextMiddleware extracts/generates x-request-id and parses x-context,
// attaching a requestContext via gorilla/context the way the teacher's
// ContextHandler attaches *Context.
func (g *Gateway) contextMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("x-request-id")
		if reqID == "" {
			reqID = uuid.NewString()
		}

		rc := requestContext{RequestID: reqID}
		if raw := r.Header.Get("x-context"); raw != "" {
			var parsed struct {
				Caller client.CallerContext `json:"caller"`
				Params map[string]any       `json:"params"`
			}
			if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
				log.WithField("error", err).Warn("malformed x-context header, continuing with empty caller")
			} else {
				rc.Caller = parsed.Caller
				rc.Params = parsed.Params
			}
		}

		r = r.WithContext(collaborators.WithRequestID(r.Context(), reqID))
		context.Set(r, keyRequestContext, &rc)
		w.Header().Set("x-request-id", reqID)
		h.ServeHTTP(w, r)
	})
}

func getRequestContext(r *http.Request) *requestContext {
	if rv := context.Get(r, keyRequestContext); rv != nil {
		return rv.(*requestContext)
	}
	return &requestContext{}
}

// vmMiddleware resolves {uuid} from the store and attaches it via
// gorilla/context, mirroring the teacher's GuestHandler. Must run after
// contextMiddleware.
func (g *Gateway) vmMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["uuid"]
		vm, err := g.Store.GetVM(id)
		if err != nil {
			if err == store.ErrNotFound {
				writeError(w, 404, &validate.Error{Code: "ResourceNotFound", Message: "vm not found", HTTPStatus: 404})
				return
			}
			writeError(w, 500, &validate.Error{Code: "InternalError", Message: err.Error(), HTTPStatus: 500})
			return
		}
		context.Set(r, keyVM, vm)
		h.ServeHTTP(w, r)
	})
}

func getVMFromContext(r *http.Request) *client.VM {
	if rv := context.Get(r, keyVM); rv != nil {
		return rv.(*client.VM)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, obj interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(obj)
}

// writeError serializes a validate.Error, using fallbackCode when its
// HTTPStatus is unset, matching the {code, message, errors[]} shape
// spec.md §7 requires. Plain errors are wrapped by asValidateError first.
func writeError(w http.ResponseWriter, fallbackCode int, err *validate.Error) {
	status := err.HTTPStatus
	if status == 0 {
		status = fallbackCode
	}
	writeJSON(w, status, err)
}

// asValidateError unwraps err into a *validate.Error, defaulting to a 500
// InternalError if it isn't one.
func asValidateError(err error) *validate.Error {
	if ve, ok := err.(*validate.Error); ok {
		return ve
	}
	return &validate.Error{Code: "InternalError", Message: err.Error(), HTTPStatus: 500}
}

func writeAccepted(w http.ResponseWriter, wfapiURL, vmUUID, jobUUID string) {
	w.Header().Set("workflow-api", wfapiURL)
	writeJSON(w, 202, map[string]string{"vm_uuid": vmUUID, "job_uuid": jobUUID})
}
