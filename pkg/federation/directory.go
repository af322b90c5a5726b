package federation

import (
	"context"

	"github.com/nodeweave/nodeweave/pkg/models"
	"github.com/nodeweave/nodeweave/pkg/store"
)

// Directory performs the signed read-side queries against remote nodes:
// discovery listings and group join policies. Reads require an established
// connection; there is no unsigned browse path.
type Directory struct {
	nodes  store.NodeStore
	client *Client
}

func NewDirectory(nodes store.NodeStore, client *Client) *Directory {
	return &Directory{
		nodes:  nodes,
		client: client,
	}
}

func (d *Directory) connected(hostname string) (*models.Node, error) {
	node, err := d.nodes.GetByHostname(hostname)
	if err != nil {
		return nil, err
	}
	if node == nil || !node.IsConnected() {
		return nil, ErrNodeNotConnected
	}
	return node, nil
}

// DiscoverUsers lists the users local to a remote node.
func (d *Directory) DiscoverUsers(ctx context.Context, hostname string) ([]models.EntityRef, error) {
	node, err := d.connected(hostname)
	if err != nil {
		return nil, err
	}
	var resp DiscoverUsersResponse
	if err := d.client.GetSigned(ctx, node.Hostname, *node.SharedSecret, EndpointDiscoverUsers, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// DiscoverGroups lists the groups local to a remote node.
func (d *Directory) DiscoverGroups(ctx context.Context, hostname string) ([]models.EntityRef, error) {
	node, err := d.connected(hostname)
	if err != nil {
		return nil, err
	}
	var resp DiscoverGroupsResponse
	if err := d.client.GetSigned(ctx, node.Hostname, *node.SharedSecret, EndpointDiscoverGroups, &resp); err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

// FetchGroupJoinSettings retrieves a remote group's join policy, shown to a
// local user before they submit a join request.
func (d *Directory) FetchGroupJoinSettings(ctx context.Context, hostname, groupPUID string) (*GroupJoinSettingsResponse, error) {
	node, err := d.connected(hostname)
	if err != nil {
		return nil, err
	}
	var resp GroupJoinSettingsResponse
	if err := d.client.GetSigned(ctx, node.Hostname, *node.SharedSecret, EndpointGroupJoinSettings+"/"+groupPUID, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
