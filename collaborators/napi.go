package collaborators

import (
	"context"
	"net/url"

	"github.com/Smithx10/sdc-vmapi/client"
)

// NAPIClient talks to the network API: CRUD on NIC records and network/pool
// lookups by id or name.
type NAPIClient struct{ *baseClient }

// NewNAPIClient builds a NAPIClient bound to rawurl.
func NewNAPIClient(rawurl string) (*NAPIClient, error) {
	base, err := newBaseClient("napi", rawurl)
	if err != nil {
		return nil, err
	}
	return &NAPIClient{base}, nil
}

// Network is a NAPI network or network pool.
type Network struct {
	UUID      string `json:"uuid"`
	Name      string `json:"name"`
	Fabric    bool   `json:"fabric"`
	OwnerUUID string `json:"owner_uuid,omitempty"`
	Public    bool   `json:"public"`
	NicTag    string `json:"nic_tag"`
}

// GetNetwork resolves a network or pool by uuid.
func (c *NAPIClient) GetNetwork(ctx context.Context, uuid string) (*Network, error) {
	var n Network
	if err := c.do(ctx, "GET", "/networks/"+uuid, nil, nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// FindNetworkByName resolves a network or pool visible to ownerUUID by
// name. Global networks are visible to every owner.
func (c *NAPIClient) FindNetworkByName(ctx context.Context, ownerUUID, name string) (*Network, error) {
	q := url.Values{"name": {name}, "owner_uuid": {ownerUUID}}
	var ns []Network
	if err := c.do(ctx, "GET", "/networks", q, nil, &ns); err != nil {
		return nil, err
	}
	if len(ns) == 0 {
		return nil, &StatusError{Service: "napi", StatusCode: 404, Code: "ResourceNotFound"}
	}
	return &ns[0], nil
}

// CreateNicRequest is the payload for reserving/creating a NIC.
type CreateNicRequest struct {
	BelongsToUUID string `json:"belongs_to_uuid"`
	BelongsToType string `json:"belongs_to_type"`
	OwnerUUID     string `json:"owner_uuid"`
	NetworkUUID   string `json:"network_uuid"`
	IP            string `json:"ip,omitempty"`
}

// CreateNic reserves a NIC for a zone on the given network.
func (c *NAPIClient) CreateNic(ctx context.Context, req CreateNicRequest) (*client.Nic, error) {
	var nic client.Nic
	if err := c.do(ctx, "POST", "/nics", nil, req, &nic); err != nil {
		return nil, err
	}
	return &nic, nil
}

// NicsByOwner lists the NIC records belonging to a zone, used by the
// Reconciler to find the NICs it deletes after a failed provision
// (spec.md P6).
func (c *NAPIClient) NicsByOwner(ctx context.Context, belongsToUUID string) ([]client.Nic, error) {
	q := url.Values{"belongs_to_uuid": {belongsToUUID}}
	nics := make([]client.Nic, 0)
	if err := c.do(ctx, "GET", "/nics", q, nil, &nics); err != nil {
		return nil, err
	}
	return nics, nil
}

// DeleteNic removes a NIC record by mac address.
func (c *NAPIClient) DeleteNic(ctx context.Context, mac string) error {
	return c.do(ctx, "DELETE", "/nics/"+url.PathEscape(mac), nil, nil, nil)
}

// IPInUse checks whether ip on networkUUID is already assigned, returning
// the owning zone's uuid if so.
func (c *NAPIClient) IPInUse(ctx context.Context, networkUUID, ip string) (vmUUID string, inUse bool, err error) {
	var ips []struct {
		IP            string `json:"ip"`
		BelongsToUUID string `json:"belongs_to_uuid"`
		BelongsToType string `json:"belongs_to_type"`
	}
	q := url.Values{"ip": {ip}}
	if err := c.do(ctx, "GET", "/networks/"+networkUUID+"/ips", q, nil, &ips); err != nil {
		return "", false, err
	}
	for _, entry := range ips {
		if entry.IP == ip && entry.BelongsToType == "zone" {
			return entry.BelongsToUUID, true, nil
		}
	}
	return "", false, nil
}

// ReserveFabricNAT ensures a NAT-dedicated IP exists on a fabric network.
func (c *NAPIClient) ReserveFabricNAT(ctx context.Context, fabricUUID string) (*Network, error) {
	var n Network
	if err := c.do(ctx, "POST", "/networks/"+fabricUUID+"/nat", nil, nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}
