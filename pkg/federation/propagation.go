package federation

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nodeweave/nodeweave/pkg/fedauth"
	"github.com/nodeweave/nodeweave/pkg/models"
	"github.com/nodeweave/nodeweave/pkg/store"
	"github.com/rs/xid"
)

// Operation is one outbound notification: an endpoint plus its payload.
type Operation struct {
	Endpoint string
	Payload  any
}

// Propagator fans local mutations out to the remote nodes that need to learn
// about them. Target sets are re-derived from current relationship state at
// propagation time, never cached. Delivery itself goes through the durable
// outbox; a local mutation never waits on, or fails because of, a remote
// node.
type Propagator struct {
	localHostname string
	nodes         store.NodeStore
	friends       store.FriendStore
	follows       store.FollowStore
	groups        store.GroupStore
	outbox        store.OutboxStore
}

func NewPropagator(localHostname string, stores store.Stores) *Propagator {
	return &Propagator{
		localHostname: localHostname,
		nodes:         stores.Nodes,
		friends:       stores.Friends,
		follows:       stores.Follows,
		groups:        stores.Groups,
		outbox:        stores.Outbox,
	}
}

// enqueue queues one operation for each target hostname. Targets without a
// usable connection are skipped outright, not attempted.
func (p *Propagator) enqueue(targets []string, op Operation) error {
	return p.enqueueOrdered(targets, []Operation{op})
}

// enqueueOrdered queues a dependent sequence of operations as one batch per
// target. The outbox sender guarantees in-order delivery within a batch, so
// callers no longer need wall-clock delays between dependent notifications.
func (p *Propagator) enqueueOrdered(targets []string, ops []Operation) error {
	if len(ops) == 0 {
		return nil
	}
	payloads := make([][]byte, len(ops))
	for i, op := range ops {
		body, err := fedauth.CanonicalBody(op.Payload)
		if err != nil {
			return err
		}
		payloads[i] = body
	}

	items := []*models.OutboxItem{}
	for _, target := range dedupe(targets) {
		if target == "" || target == p.localHostname {
			continue
		}
		node, err := p.nodes.GetByHostname(target)
		if err != nil {
			return err
		}
		if node == nil || !node.IsConnected() {
			slog.Debug("skipping propagation to unconnected node", "hostname", target)
			continue
		}
		batchID := xid.New().String()
		for i, op := range ops {
			items = append(items, &models.OutboxItem{
				BatchID:        batchID,
				Seq:            i + 1,
				TargetHostname: target,
				Endpoint:       op.Endpoint,
				Payload:        payloads[i],
				NextAttempt:    time.Now(),
			})
		}
	}
	if len(items) == 0 {
		return nil
	}
	return p.outbox.Enqueue(items)
}

func dedupe(hostnames []string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, h := range hostnames {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

// SendFriendRequest notifies the receiver's home node of a new request from
// a local user.
func (p *Propagator) SendFriendRequest(sender, receiver *models.Entity) error {
	if !receiver.IsRemote() {
		return nil
	}
	pic := ""
	if sender.ProfilePicturePath != nil {
		pic = *sender.ProfilePicturePath
	}
	return p.enqueue([]string{receiver.HomeHostname()}, Operation{
		Endpoint: EndpointReceiveFriendRequest,
		Payload: FriendRequestPayload{
			SenderPUID:               sender.PUID,
			SenderHostname:           p.localHostname,
			SenderDisplayName:        sender.DisplayName,
			SenderProfilePicturePath: pic,
			ReceiverPUID:             receiver.PUID,
		},
	})
}

// RespondFriendRequest notifies the original sender's home node that a local
// user accepted or rejected their request.
func (p *Propagator) RespondFriendRequest(remoteSender, localReceiver *models.Entity, action string) error {
	if !remoteSender.IsRemote() {
		return nil
	}
	return p.enqueue([]string{remoteSender.HomeHostname()}, Operation{
		Endpoint: EndpointFriendRequestResponse,
		Payload: FriendResponsePayload{
			SenderPUID:   remoteSender.PUID,
			ReceiverPUID: localReceiver.PUID,
			Action:       action,
		},
	})
}

// Unfriend notifies the counterparty's home node of a severed friendship.
func (p *Propagator) Unfriend(actor, target *models.Entity) error {
	if !target.IsRemote() {
		return nil
	}
	return p.enqueue([]string{target.HomeHostname()}, Operation{
		Endpoint: EndpointUnfriend,
		Payload: UnfriendPayload{
			ActorPUID:  actor.PUID,
			TargetPUID: target.PUID,
		},
	})
}

// FollowPage notifies a remote page's home node of a new local follower.
func (p *Propagator) FollowPage(follower, page *models.Entity) error {
	if !page.IsRemote() {
		return nil
	}
	return p.enqueue([]string{page.HomeHostname()}, Operation{
		Endpoint: EndpointReceiveFollow,
		Payload: FollowPayload{
			PageToFollowPUID:    page.PUID,
			FollowerPUID:        follower.PUID,
			FollowerDisplayName: follower.DisplayName,
			FollowerHostname:    p.localHostname,
		},
	})
}

// UnfollowPage notifies a remote page's home node that a local follower left.
func (p *Propagator) UnfollowPage(follower, page *models.Entity) error {
	if !page.IsRemote() {
		return nil
	}
	return p.enqueue([]string{page.HomeHostname()}, Operation{
		Endpoint: EndpointReceiveUnfollow,
		Payload: UnfollowPayload{
			PagePUID:     page.PUID,
			FollowerPUID: follower.PUID,
		},
	})
}

// SendGroupJoinRequest notifies a remote group's home node that a local user
// wants in.
func (p *Propagator) SendGroupJoinRequest(group, requester *models.Entity, rulesAgreed bool, questionResponses string) error {
	if !group.IsRemote() {
		return nil
	}
	return p.enqueue([]string{group.HomeHostname()}, Operation{
		Endpoint: EndpointReceiveGroupJoin,
		Payload: GroupJoinRequestPayload{
			GroupPUID:         group.PUID,
			RequesterData:     requester.Ref(p.localHostname),
			RulesAgreed:       rulesAgreed,
			QuestionResponses: questionResponses,
		},
	})
}

// SendGroupMembershipUpdate propagates a membership lifecycle transition.
// The target is the group's home node when a local member acts on a remote
// group, or the member's home node when a local group admin acts on a remote
// member.
func (p *Propagator) SendGroupMembershipUpdate(group, member *models.Entity, action string) error {
	var target string
	switch {
	case group.IsRemote():
		target = group.HomeHostname()
	case member.IsRemote():
		target = member.HomeHostname()
	default:
		return nil
	}
	return p.enqueue([]string{target}, Operation{
		Endpoint: EndpointGroupMembership,
		Payload: GroupMembershipPayload{
			GroupPUID:  group.PUID,
			MemberPUID: member.PUID,
			Action:     action,
		},
	})
}

// DistributePost fans a new or edited post out to its audience: friend nodes
// for friends-privacy posts, member home nodes for group posts, all fully
// connected nodes for public posts. Extra dependent operations (attachments,
// poll data) ride in the same batch so they arrive after the post itself.
func (p *Propagator) DistributePost(post *models.Post, author *models.Entity, group *models.Entity, extra ...Operation) error {
	targets, err := p.postTargets(post, author, group)
	if err != nil {
		return err
	}
	groupPUID := ""
	if group != nil {
		groupPUID = group.PUID
	}
	ops := append([]Operation{{
		Endpoint: EndpointReceivePost,
		Payload: PostPayload{
			CUID:      post.CUID,
			Author:    author.Ref(p.localHostname),
			GroupPUID: groupPUID,
			Content:   post.Content,
			Privacy:   post.Privacy,
		},
	}}, extra...)
	return p.enqueueOrdered(targets, ops)
}

// RetractPost tells the post's audience to drop their copies.
func (p *Propagator) RetractPost(post *models.Post, author *models.Entity, group *models.Entity) error {
	targets, err := p.postTargets(post, author, group)
	if err != nil {
		return err
	}
	return p.enqueue(targets, Operation{
		Endpoint: EndpointDeletePost,
		Payload: DeletePostPayload{
			CUID:       post.CUID,
			AuthorPUID: author.PUID,
		},
	})
}

func (p *Propagator) postTargets(post *models.Post, author *models.Entity, group *models.Entity) ([]string, error) {
	switch post.Privacy {
	case models.PrivacyGroup:
		if group == nil {
			return nil, fmt.Errorf("group post %s has no group", post.CUID)
		}
		if group.IsRemote() {
			return []string{group.HomeHostname()}, nil
		}
		return p.groups.ListMemberHostnames(group.ID)
	case models.PrivacyPublic:
		nodes, err := p.nodes.GetConnected(false)
		if err != nil {
			return nil, err
		}
		targets := make([]string, 0, len(nodes))
		for _, n := range nodes {
			targets = append(targets, n.Hostname)
		}
		return targets, nil
	default:
		return p.friends.ListFriendHostnames(author.ID)
	}
}

// PropagateProfileUpdate broadcasts changed display fields to every node the
// entity has any relationship with.
func (p *Propagator) PropagateProfileUpdate(entity *models.Entity) error {
	var targets []string
	var err error
	switch entity.EntityType {
	case models.EntityTypeGroup:
		targets, err = p.groups.ListMemberHostnames(entity.ID)
	case models.EntityTypePage:
		targets, err = p.follows.ListFollowerHostnames(entity.ID)
	default:
		targets, err = p.friends.ListRelatedHostnames(entity.ID)
	}
	if err != nil {
		return err
	}
	pic := ""
	if entity.ProfilePicturePath != nil {
		pic = *entity.ProfilePicturePath
	}
	return p.enqueue(targets, Operation{
		Endpoint: EndpointProfileUpdate,
		Payload: ProfileUpdatePayload{
			PUID:               entity.PUID,
			Hostname:           p.localHostname,
			DisplayName:        entity.DisplayName,
			ProfilePicturePath: pic,
		},
	})
}

// PropagateRemoveTag tells the post's origin node to drop a tag/mention of
// the subject, for posts whose authoritative copy lives elsewhere.
func (p *Propagator) PropagateRemoveTag(originHostname, cuid, subjectPUID string) error {
	return p.enqueue([]string{originHostname}, Operation{
		Endpoint: EndpointRemoveTag,
		Payload: RemoveTagPayload{
			CUID:        cuid,
			SubjectPUID: subjectPUID,
		},
	})
}
