package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Smithx10/sdc-vmapi/client"
	"github.com/Smithx10/sdc-vmapi/collaborators"
	"github.com/Smithx10/sdc-vmapi/query"
	"github.com/Smithx10/sdc-vmapi/store"
	"github.com/Smithx10/sdc-vmapi/validate"
)

// listVMs implements GET|HEAD /vms: structured filters, the query= LDAP
// string, the predicate= JSON tree, pagination/projection (spec.md §4.5).
func (g *Gateway) listVMs(w http.ResponseWriter, r *http.Request) {
	opts, ferr := parseListOptions(r)
	if ferr != nil {
		writeError(w, 0, ferr)
		return
	}

	res, err := g.Store.List(*opts)
	if err != nil {
		writeError(w, 500, asValidateError(err))
		return
	}

	w.Header().Set("x-joyent-resource-count", strconv.Itoa(res.Total))

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		return
	}

	if len(opts.Fields) == 0 {
		writeJSON(w, 200, res.VMs)
		return
	}
	rows := make([]map[string]any, 0, len(res.VMs))
	for _, v := range res.VMs {
		row, err := store.Project(v, opts.Fields)
		if err != nil {
			writeError(w, 500, asValidateError(err))
			return
		}
		rows = append(rows, row)
	}
	writeJSON(w, 200, rows)
}

// parseListOptions compiles the query string of GET /vms into a
// store.ListOptions, intersecting structured filters with query= and/or
// predicate= (spec.md §4.5: "the three are intersected").
func parseListOptions(r *http.Request) (*store.ListOptions, *validate.Error) {
	q := r.URL.Query()
	opts := &store.ListOptions{Filter: map[string]string{}}

	reserved := map[string]bool{
		"query": true, "predicate": true, "fields": true,
		"limit": true, "offset": true, "sort": true, "state": true,
	}
	for key, vals := range q {
		if reserved[key] || len(vals) == 0 || vals[0] == "" {
			continue
		}
		if strings.HasPrefix(key, "tag.") {
			opts.Filter[key] = vals[0]
			continue
		}
		opts.Filter[key] = vals[0]
	}

	if state := q.Get("state"); state != "" {
		if state == "active" {
			opts.Active = true
		} else {
			opts.Filter["state"] = state
		}
	}

	var exprs []*query.Expr
	if qs := q.Get("query"); qs != "" {
		e, err := query.ParseLDAP(qs)
		if err != nil {
			return nil, &validate.Error{Code: validate.CodeValidationFailed, Message: err.Error(), HTTPStatus: 409}
		}
		exprs = append(exprs, e)
	}
	if ps := q.Get("predicate"); ps != "" {
		e, err := query.ParsePredicate([]byte(ps))
		if err != nil {
			return nil, &validate.Error{Code: validate.CodeValidationFailed, Message: err.Error(), HTTPStatus: 409}
		}
		exprs = append(exprs, e)
	}
	opts.Expr = query.And(exprs...)

	if f := q.Get("fields"); f != "" {
		opts.Fields = strings.Split(f, ",")
	}
	opts.Sort = q.Get("sort")

	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			opts.Limit = n
		}
	}
	if o := q.Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil {
			opts.Offset = n
		}
	}

	return opts, nil
}

func muxVar(r *http.Request, name string) string { return mux.Vars(r)[name] }

// getVM implements GET /vms/:uuid.
func (g *Gateway) getVM(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, getVMFromContext(r))
}

// createVM implements POST /vms: validates the provision body, allocates
// a fresh VM record in state=provisioning, persists it, and submits the
// provision pipeline (spec.md §4.1/§4.3).
func (g *Gateway) createVM(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OwnerUUID        string                     `json:"owner_uuid"`
		ImageUUID        string                     `json:"image_uuid"`
		Brand            string                     `json:"brand"`
		Networks         []validate.NetworkRef      `json:"networks"`
		RAM              uint64                     `json:"ram"`
		BillingID        string                     `json:"billing_id"`
		Alias            string                     `json:"alias"`
		Locality         *validate.Locality         `json:"locality"`
		Disks            []validate.DiskParam       `json:"disks"`
		Tags             map[string]any             `json:"tags"`
		CustomerMetadata map[string]string          `json:"customer_metadata"`
		InternalMetadata map[string]string          `json:"internal_metadata"`
		FirewallRules    []validate.FirewallRuleParam `json:"firewall_rules"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, 0, &validate.Error{Code: validate.CodeValidationFailed, Message: "malformed json body", HTTPStatus: 409})
		return
	}

	if body.ImageUUID == "" && len(body.Disks) > 0 {
		body.ImageUUID = body.Disks[0].ImageUUID
	}

	params, err := g.Validator.Provision(r.Context(), validate.ProvisionRequest{
		OwnerUUID: body.OwnerUUID, ImageUUID: body.ImageUUID, Brand: body.Brand,
		Networks: body.Networks, RAM: body.RAM, BillingID: body.BillingID, Alias: body.Alias,
		Locality: body.Locality, Disks: body.Disks, Tags: body.Tags,
		CustomerMetadata: body.CustomerMetadata, InternalMetadata: body.InternalMetadata,
		FirewallRules: body.FirewallRules,
	})
	if err != nil {
		writeError(w, 0, asValidateError(err))
		return
	}

	vm := &client.VM{
		UUID:              uuid.NewString(),
		OwnerUUID:         params.OwnerUUID,
		Brand:             params.Brand,
		State:             client.StateProvisioning,
		Alias:             params.Alias,
		BillingID:         params.BillingID,
		ImageUUID:         params.ImageUUID,
		RAM:               params.RAM,
		MaxPhysicalMemory: params.RAM,
		Autoboot:          true,
		Tags:              params.Tags,
		CustomerMetadata:  params.CustomerMetadata,
		InternalMetadata:  params.InternalMetadata,
	}
	for _, d := range params.Disks {
		vm.Disks = append(vm.Disks, client.Disk{ImageUUID: d.ImageUUID, Size: d.Size, Boot: d.Boot, Index: d.Index})
	}
	for _, fr := range params.FirewallRules {
		vm.FirewallRules = append(vm.FirewallRules, client.FirewallRule{UUID: fr.UUID, Rule: fr.Rule, OwnerUUID: fr.OwnerUUID, Enabled: fr.Enabled})
	}
	networkRefs := make([]string, 0, len(params.Networks))
	for _, n := range params.Networks {
		networkRefs = append(networkRefs, n.UUID)
	}

	if err := g.Store.PutVM(vm); err != nil {
		writeError(w, 500, asValidateError(err))
		return
	}

	rc := getRequestContext(r)
	jobUUID, err := g.Composer.Submit(r.Context(), "provision", vm, rc.Caller, map[string]interface{}{
		"network_refs": networkRefs,
	})
	if err != nil {
		writeError(w, 500, asValidateError(err))
		return
	}
	writeAccepted(w, g.WFAPIURL, vm.UUID, jobUUID)
}

// destroyVM implements DELETE /vms/:uuid.
func (g *Gateway) destroyVM(w http.ResponseWriter, r *http.Request) {
	vm := getVMFromContext(r)
	rc := getRequestContext(r)
	jobUUID, err := g.Composer.Submit(r.Context(), "destroy", vm, rc.Caller, map[string]interface{}{})
	if err != nil {
		writeError(w, 500, asValidateError(err))
		return
	}
	writeAccepted(w, g.WFAPIURL, vm.UUID, jobUUID)
}

// postVMAction implements POST /vms/:uuid: dispatches on body.action to
// the matching Composer pipeline, validating first (spec.md §4.1/§4.2).
func (g *Gateway) postVMAction(w http.ResponseWriter, r *http.Request) {
	vm := getVMFromContext(r)

	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, 0, &validate.Error{Code: validate.CodeValidationFailed, Message: "malformed json body", HTTPStatus: 409})
		return
	}
	action, _ := body["action"].(string)
	if action == "" {
		writeError(w, 0, &validate.Error{Code: validate.CodeValidationFailed, Message: "action is required", HTTPStatus: 409})
		return
	}

	rc := getRequestContext(r)
	ctx := r.Context()

	switch action {
	case "start", "stop", "reboot":
		if vm.State == client.StateProvisioning {
			writeError(w, 0, &validate.Error{Code: validate.CodeUnallocatedVM, Message: "vm has not finished provisioning", HTTPStatus: 409})
			return
		}
		if action == "stop" && vm.State != client.StateRunning {
			writeError(w, 0, &validate.Error{Code: validate.CodeVMNotRunning, Message: "vm is not running", HTTPStatus: 409})
			return
		}
		if action == "start" && vm.State != client.StateStopped {
			writeError(w, 0, &validate.Error{Code: validate.CodeVMNotStopped, Message: "vm is not stopped", HTTPStatus: 409})
			return
		}
		if action == "reboot" && vm.State != client.StateRunning {
			writeError(w, 0, &validate.Error{Code: validate.CodeVMNotRunning, Message: "vm is not running", HTTPStatus: 409})
			return
		}
		g.submitAction(w, r, action, vm, rc, map[string]interface{}{})

	case "update":
		ownerUUID, _ := body["owner_uuid"].(string)
		billingID, _ := body["billing_id"].(string)
		alias, _ := body["alias"].(string)
		var autoboot *bool
		if ab, ok := body["autoboot"].(bool); ok {
			autoboot = &ab
		}
		tags, _ := body["tags"].(map[string]any)

		var newPackageRAM uint64
		if billingID != "" && billingID != vm.BillingID {
			pkg, err := g.Validator.PAPI.GetPackage(ctx, billingID)
			if err != nil {
				writeError(w, 0, &validate.Error{Code: validate.CodeValidationFailed, Message: "looking up billing_id package: " + err.Error(), HTTPStatus: 409})
				return
			}
			newPackageRAM = pkg.RAM
		}

		params, err := g.Validator.Update(ctx, validate.UpdateRequest{
			VMUUID: vm.UUID, OwnerUUID: ownerUUID, BillingID: billingID,
			Alias: alias, Autoboot: autoboot, Tags: tags,
		}, vm, newPackageRAM)
		if err != nil {
			writeError(w, 0, asValidateError(err))
			return
		}
		if params.BillingID != "" {
			vm.BillingID = params.BillingID
		}
		if params.Alias != "" {
			vm.Alias = params.Alias
		}
		if params.Autoboot != nil {
			vm.Autoboot = *params.Autoboot
		}
		if params.Tags != nil {
			vm.Tags = params.Tags
		}
		g.submitAction(w, r, "update", vm, rc, map[string]interface{}{})

	case "add_nics":
		rawNets, _ := body["networks"].([]interface{})
		refs := decodeNetworkRefs(rawNets)
		params, err := g.Validator.AddNics(ctx, validate.AddNicsRequest{VMUUID: vm.UUID, OwnerUUID: vm.OwnerUUID, Networks: refs})
		if err != nil {
			writeError(w, 0, asValidateError(err))
			return
		}
		networkRefs := make([]string, 0, len(params.Networks))
		nicReqs := make([]collaborators.CreateNicRequest, 0, len(params.Networks))
		for _, n := range params.Networks {
			networkRefs = append(networkRefs, n.UUID)
			nicReqs = append(nicReqs, collaborators.CreateNicRequest{BelongsToUUID: vm.UUID, BelongsToType: "zone", OwnerUUID: vm.OwnerUUID, NetworkUUID: n.UUID, IP: n.IP})
		}
		g.submitAction(w, r, "add_nics", vm, rc, map[string]interface{}{"network_refs": networkRefs, "nic_requests": nicReqs})

	case "remove_nics":
		rawMacs, _ := body["macs"].([]interface{})
		macs := decodeStrings(rawMacs)
		if _, err := g.Validator.RemoveNics(vm.UUID, macs); err != nil {
			writeError(w, 0, asValidateError(err))
			return
		}
		g.submitAction(w, r, "remove_nics", vm, rc, map[string]interface{}{"macs": macs})

	case "create_snapshot", "rollback_snapshot", "delete_snapshot":
		name, _ := body["name"].(string)
		if _, err := g.Validator.Snapshot(vm.UUID, name); err != nil {
			writeError(w, 0, asValidateError(err))
			return
		}
		g.submitAction(w, r, action, vm, rc, map[string]interface{}{"snapshot_name": name})

	case "reprovision":
		imageUUID, _ := body["image_uuid"].(string)
		if _, err := g.Validator.Reprovision(vm.UUID, imageUUID); err != nil {
			writeError(w, 0, asValidateError(err))
			return
		}
		g.submitAction(w, r, "reprovision", vm, rc, map[string]interface{}{"image_uuid": imageUUID})

	case "migrate":
		phase, _ := body["phase"].(string)
		switch phase {
		case "sync":
			g.submitAction(w, r, "migrate_sync", vm, rc, map[string]interface{}{})
		case "switch":
			g.submitAction(w, r, "migrate_switch", vm, rc, map[string]interface{}{})
		default:
			targetServerUUID, _ := body["target_server_uuid"].(string)
			g.submitAction(w, r, "migrate_begin", vm, rc, map[string]interface{}{"target_server_uuid": targetServerUUID})
		}

	default:
		writeError(w, 0, &validate.Error{Code: validate.CodeValidationFailed, Message: "unknown action \"" + action + "\"", HTTPStatus: 409})
	}
}

func (g *Gateway) submitAction(w http.ResponseWriter, r *http.Request, action string, vm *client.VM, rc *requestContext, params map[string]interface{}) {
	jobUUID, err := g.Composer.Submit(r.Context(), action, vm, rc.Caller, params)
	if err != nil {
		writeError(w, 500, asValidateError(err))
		return
	}
	writeAccepted(w, g.WFAPIURL, vm.UUID, jobUUID)
}

func decodeNetworkRefs(raw []interface{}) []validate.NetworkRef {
	refs := make([]validate.NetworkRef, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		ref := validate.NetworkRef{}
		if v, ok := m["uuid"].(string); ok {
			ref.UUID = v
		}
		if v, ok := m["name"].(string); ok {
			ref.Name = v
		}
		if v, ok := m["ipv4_uuid"].(string); ok {
			ref.IP = v
		}
		if v, ok := m["ip"].(string); ok {
			ref.IP = v
		}
		refs = append(refs, ref)
	}
	return refs
}

func decodeStrings(raw []interface{}) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// getTags implements GET /vms/:uuid/tags.
func (g *Gateway) getTags(w http.ResponseWriter, r *http.Request) {
	vm := getVMFromContext(r)
	tags := vm.Tags
	if tags == nil {
		tags = map[string]any{}
	}
	writeJSON(w, 200, tags)
}

// getTag implements GET /vms/:uuid/tags/:key.
func (g *Gateway) getTag(w http.ResponseWriter, r *http.Request) {
	vm := getVMFromContext(r)
	key := muxVar(r, "key")
	val, ok := vm.Tags[key]
	if !ok {
		writeError(w, 404, &validate.Error{Code: "ResourceNotFound", Message: "no such tag", HTTPStatus: 404})
		return
	}
	writeJSON(w, 200, map[string]any{key: val})
}

// postTags implements POST /vms/:uuid/tags: merges into the existing set.
func (g *Gateway) postTags(w http.ResponseWriter, r *http.Request) {
	g.tagsMutation(w, r, "set")
}

// putTags implements PUT /vms/:uuid/tags: replaces the entire set (P8).
func (g *Gateway) putTags(w http.ResponseWriter, r *http.Request) {
	g.tagsMutation(w, r, "replace")
}

// deleteAllTags implements DELETE /vms/:uuid/tags.
func (g *Gateway) deleteAllTags(w http.ResponseWriter, r *http.Request) {
	g.tagsMutation(w, r, "delete_all")
}

// deleteTag implements DELETE /vms/:uuid/tags/:key.
func (g *Gateway) deleteTag(w http.ResponseWriter, r *http.Request) {
	vm := getVMFromContext(r)
	key := muxVar(r, "key")
	params, err := g.Validator.TagsOp(vm.UUID, "delete_key", nil, key, vm)
	if err != nil {
		writeError(w, 0, asValidateError(err))
		return
	}
	g.submitTags(w, r, vm, params)
}

func (g *Gateway) tagsMutation(w http.ResponseWriter, r *http.Request, op string) {
	vm := getVMFromContext(r)
	var tags map[string]any
	if op != "delete_all" {
		if err := json.NewDecoder(r.Body).Decode(&tags); err != nil {
			writeError(w, 0, &validate.Error{Code: validate.CodeValidationFailed, Message: "malformed json body", HTTPStatus: 409})
			return
		}
	}
	params, err := g.Validator.TagsOp(vm.UUID, op, tags, "", vm)
	if err != nil {
		writeError(w, 0, asValidateError(err))
		return
	}
	g.submitTags(w, r, vm, params)
}

func (g *Gateway) submitTags(w http.ResponseWriter, r *http.Request, vm *client.VM, params *validate.TagsParams) {
	rc := getRequestContext(r)
	jobUUID, err := g.Composer.Submit(r.Context(), "update_tags", vm, rc.Caller, map[string]interface{}{
		"tags_op": params.Op,
		"tags":    params.Tags,
		"tag_key": params.Key,
	})
	if err != nil {
		writeError(w, 500, asValidateError(err))
		return
	}
	writeAccepted(w, g.WFAPIURL, vm.UUID, jobUUID)
}

// listVMJobs implements GET /vms/:uuid/jobs.
func (g *Gateway) listVMJobs(w http.ResponseWriter, r *http.Request) {
	vm := getVMFromContext(r)
	q := r.URL.Query()
	jobs, err := g.JobLog.List(store.JobFilter{VMUUID: vm.UUID, Task: q.Get("task"), Execution: q.Get("execution")})
	if err != nil {
		writeError(w, 500, asValidateError(err))
		return
	}
	writeJSON(w, 200, jobs)
}

// listJobs implements GET /jobs.
func (g *Gateway) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	jobs, err := g.JobLog.List(store.JobFilter{VMUUID: q.Get("vm_uuid"), Task: q.Get("task"), Execution: q.Get("execution")})
	if err != nil {
		writeError(w, 500, asValidateError(err))
		return
	}
	writeJSON(w, 200, jobs)
}

// getJob implements GET /jobs/:uuid.
func (g *Gateway) getJob(w http.ResponseWriter, r *http.Request) {
	id := muxVar(r, "uuid")
	j, err := g.JobLog.Get(id)
	if err != nil {
		if err == store.ErrNotFound {
			writeError(w, 404, &validate.Error{Code: "ResourceNotFound", Message: "job not found", HTTPStatus: 404})
			return
		}
		writeError(w, 500, asValidateError(err))
		return
	}
	writeJSON(w, 200, j)
}
