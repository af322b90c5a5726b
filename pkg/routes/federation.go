package routes

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/nodeweave/nodeweave/pkg/fedauth"
	"github.com/nodeweave/nodeweave/pkg/federation"
	"github.com/nodeweave/nodeweave/pkg/models"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, status, message string) {
	writeJSON(w, federation.StatusResponse{Status: status, Message: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return false
	}
	return true
}

// mustSender returns the authenticated sending node. Handlers behind the
// authenticator can rely on it being present; its absence is a wiring bug.
func mustSender(w http.ResponseWriter, r *http.Request) (*fedauth.AuthenticatedNode, bool) {
	sender, ok := fedauth.FromContext(r.Context())
	if !ok {
		slog.Error("federation handler reached without authentication", "path", r.URL.Path)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil, false
	}
	return sender, true
}

func (wr *WebRouter) initiatePairing(w http.ResponseWriter, r *http.Request) {
	var req federation.PairingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := wr.Pairing.HandleInitiate(r.Context(), req)
	switch {
	case errors.Is(err, federation.ErrTokenExpired):
		http.Error(w, "token expired", http.StatusUnauthorized)
		return
	case errors.Is(err, federation.ErrTokenInvalid):
		http.Error(w, "invalid pairing token", http.StatusUnauthorized)
		return
	case err != nil:
		slog.Error("error handling pairing initiation", "error", err, "remote", req.Hostname)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, resp)
}

func (wr *WebRouter) targetedSubscribe(w http.ResponseWriter, r *http.Request) {
	var req federation.SubscribeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := wr.Subscriptions.HandleSubscribe(r.Context(), req, wr.storage.Entities)
	switch {
	case errors.Is(err, federation.ErrLocalEntity):
		http.Error(w, "no such subscribable entity", http.StatusNotFound)
		return
	case errors.Is(err, federation.ErrTokenInvalid):
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	case err != nil:
		slog.Error("error handling targeted subscription", "error", err, "remote", req.Hostname)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, resp)
}

func (wr *WebRouter) requestViewerToken(w http.ResponseWriter, r *http.Request) {
	if _, ok := mustSender(w, r); !ok {
		return
	}
	var req federation.ViewerTokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ViewerPUID == "" || req.TargetPUID == "" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	token, err := wr.ViewerBroker.Issue(req.ViewerPUID, req.TargetPUID, req.ViewerSettings)
	if err != nil {
		slog.Error("error issuing viewer token", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, federation.ViewerTokenResponse{ViewerToken: token})
}

func (wr *WebRouter) receiveFriendRequest(w http.ResponseWriter, r *http.Request) {
	sender, ok := mustSender(w, r)
	if !ok {
		return
	}
	var req federation.FriendRequestPayload
	if !decodeBody(w, r, &req) {
		return
	}

	receiver, err := wr.storage.Entities.GetByPUID(req.ReceiverPUID)
	if err != nil {
		slog.Error("error looking up friend request receiver", "error", err, "puid", req.ReceiverPUID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if receiver == nil || receiver.IsRemote() {
		writeStatus(w, federation.StatusError, "no such user on this node")
		return
	}

	// SenderHostname is the sender's origin, which can differ from the node
	// relaying this request.
	stub, err := wr.Resolver.ResolveUser(models.EntityRef{
		PUID:               req.SenderPUID,
		Hostname:           req.SenderHostname,
		DisplayName:        req.SenderDisplayName,
		ProfilePicturePath: req.SenderProfilePicturePath,
	})
	if err != nil {
		slog.Error("error resolving friend request sender", "error", err, "puid", req.SenderPUID, "via", sender.Hostname)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	friends, err := wr.storage.Friends.AreFriends(stub.ID, receiver.ID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if friends {
		writeStatus(w, federation.StatusInfo, "already friends")
		return
	}
	existing, err := wr.storage.Friends.GetRequest(stub.ID, receiver.ID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if existing != nil && existing.Status == models.FriendRequestPending {
		writeStatus(w, federation.StatusInfo, "request already pending")
		return
	}

	if err := wr.storage.Friends.UpsertRequest(stub.ID, receiver.ID, models.FriendRequestPending); err != nil {
		slog.Error("error storing friend request", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeStatus(w, federation.StatusSuccess, "friend request received")
}

func (wr *WebRouter) friendRequestResponse(w http.ResponseWriter, r *http.Request) {
	sender, ok := mustSender(w, r)
	if !ok {
		return
	}
	var req federation.FriendResponsePayload
	if !decodeBody(w, r, &req) {
		return
	}

	// The original request went local user -> remote user; the response
	// comes back from the remote user's home node.
	localSender, err := wr.storage.Entities.GetByPUID(req.SenderPUID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	remoteReceiver, err := wr.storage.Entities.GetByPUID(req.ReceiverPUID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if localSender == nil || localSender.IsRemote() || remoteReceiver == nil || !remoteReceiver.IsRemote() {
		writeStatus(w, federation.StatusError, "unknown friend request")
		return
	}
	if remoteReceiver.HomeHostname() != sender.Hostname {
		slog.Warn("friend response from node that does not host the receiver",
			"receiver_home", remoteReceiver.HomeHostname(), "via", sender.Hostname)
		writeStatus(w, federation.StatusError, "receiver does not live on your node")
		return
	}

	switch req.Action {
	case federation.FriendActionAccept:
		if err := wr.storage.Friends.SetRequestStatus(localSender.ID, remoteReceiver.ID, models.FriendRequestAccepted); err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if err := wr.storage.Friends.AddFriendship(localSender.ID, remoteReceiver.ID); err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		writeStatus(w, federation.StatusSuccess, "friend request accepted")
	case federation.FriendActionReject:
		if err := wr.storage.Friends.SetRequestStatus(localSender.ID, remoteReceiver.ID, models.FriendRequestRejected); err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		writeStatus(w, federation.StatusSuccess, "friend request rejected")
	default:
		writeStatus(w, federation.StatusError, "unknown action")
	}
}

func (wr *WebRouter) receiveUnfriend(w http.ResponseWriter, r *http.Request) {
	sender, ok := mustSender(w, r)
	if !ok {
		return
	}
	var req federation.UnfriendPayload
	if !decodeBody(w, r, &req) {
		return
	}

	actor, err := wr.storage.Entities.GetByPUID(req.ActorPUID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	target, err := wr.storage.Entities.GetByPUID(req.TargetPUID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if actor == nil || target == nil {
		writeStatus(w, federation.StatusInfo, "no such friendship")
		return
	}
	if actor.HomeHostname() != sender.Hostname {
		writeStatus(w, federation.StatusError, "actor does not live on your node")
		return
	}

	if err := wr.storage.Friends.RemoveFriendship(actor.ID, target.ID); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	// Leftover request rows in either direction go too, so a later request
	// between the pair starts clean.
	if err := wr.storage.Friends.DeleteRequest(actor.ID, target.ID); err != nil {
		slog.Error("error clearing friend request", "error", err, "sender_id", actor.ID, "receiver_id", target.ID)
	}
	if err := wr.storage.Friends.DeleteRequest(target.ID, actor.ID); err != nil {
		slog.Error("error clearing friend request", "error", err, "sender_id", target.ID, "receiver_id", actor.ID)
	}
	writeStatus(w, federation.StatusSuccess, "friendship removed")
}

func (wr *WebRouter) receiveGroupJoinRequest(w http.ResponseWriter, r *http.Request) {
	sender, ok := mustSender(w, r)
	if !ok {
		return
	}
	var req federation.GroupJoinRequestPayload
	if !decodeBody(w, r, &req) {
		return
	}

	group, err := wr.storage.Entities.GetByPUID(req.GroupPUID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if group == nil || group.IsRemote() || group.EntityType != models.EntityTypeGroup {
		writeStatus(w, federation.StatusError, "no such group on this node")
		return
	}

	requester, err := wr.Resolver.ResolveUser(req.RequesterData)
	if err != nil {
		slog.Error("error resolving join requester", "error", err, "puid", req.RequesterData.PUID, "via", sender.Hostname)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	existing, err := wr.storage.Groups.GetMembership(group.ID, requester.ID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		switch existing.Status {
		case models.MembershipActive:
			writeStatus(w, federation.StatusInfo, "already a member")
			return
		case models.MembershipBanned:
			writeStatus(w, federation.StatusError, "membership not available")
			return
		case models.MembershipPending:
			writeStatus(w, federation.StatusInfo, "join request already pending")
			return
		}
	}

	var responses *string
	if req.QuestionResponses != "" {
		responses = &req.QuestionResponses
	}
	err = wr.storage.Groups.UpsertMembership(&models.GroupMembership{
		GroupID:           group.ID,
		MemberID:          requester.ID,
		Role:              models.RoleMember,
		Status:            models.MembershipPending,
		RulesAgreed:       req.RulesAgreed,
		QuestionResponses: responses,
	})
	if err != nil {
		slog.Error("error storing group join request", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeStatus(w, federation.StatusSuccess, "join request received")
}

func (wr *WebRouter) groupMembershipUpdate(w http.ResponseWriter, r *http.Request) {
	sender, ok := mustSender(w, r)
	if !ok {
		return
	}
	var req federation.GroupMembershipPayload
	if !decodeBody(w, r, &req) {
		return
	}

	group, err := wr.storage.Entities.GetByPUID(req.GroupPUID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	member, err := wr.storage.Entities.GetByPUID(req.MemberPUID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if group == nil || member == nil {
		writeStatus(w, federation.StatusInfo, "unknown group or member")
		return
	}

	// Lifecycle decisions for a local group come from the member's node
	// (leave); decisions about a local member come from the group's home
	// node (accept/reject/kick/ban). Either way the authenticated sender
	// must be the home of the acting side.
	if group.IsRemote() {
		if group.HomeHostname() != sender.Hostname {
			writeStatus(w, federation.StatusError, "group does not live on your node")
			return
		}
	} else {
		if member.HomeHostname() != sender.Hostname {
			writeStatus(w, federation.StatusError, "member does not live on your node")
			return
		}
	}

	switch req.Action {
	case federation.GroupActionAccept:
		err = wr.storage.Groups.SetMembershipStatus(group.ID, member.ID, models.MembershipActive)
	case federation.GroupActionBan:
		err = wr.storage.Groups.UpsertMembership(&models.GroupMembership{
			GroupID:  group.ID,
			MemberID: member.ID,
			Role:     models.RoleMember,
			Status:   models.MembershipBanned,
		})
	case federation.GroupActionReject, federation.GroupActionLeave, federation.GroupActionKick:
		err = wr.storage.Groups.DeleteMembership(group.ID, member.ID)
	default:
		writeStatus(w, federation.StatusError, "unknown action")
		return
	}
	if err != nil {
		slog.Error("error applying membership update", "error", err, "action", req.Action)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeStatus(w, federation.StatusSuccess, "membership updated")
}

func (wr *WebRouter) groupJoinSettings(w http.ResponseWriter, r *http.Request) {
	if _, ok := mustSender(w, r); !ok {
		return
	}
	puid := mux.Vars(r)["puid"]

	group, err := wr.storage.Entities.GetByPUID(puid)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if group == nil || group.IsRemote() || group.EntityType != models.EntityTypeGroup {
		http.Error(w, "no such group", http.StatusNotFound)
		return
	}

	settings, err := wr.storage.Groups.GetSettings(group.ID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	resp := federation.GroupJoinSettingsResponse{}
	if settings != nil {
		if settings.JoinRules != nil {
			resp.JoinRules = *settings.JoinRules
		}
		resp.JoinRulesPublic = settings.JoinRulesPublic
		if settings.JoinQuestions != nil {
			resp.JoinQuestions = *settings.JoinQuestions
		}
	}
	writeJSON(w, resp)
}

func (wr *WebRouter) discoverUsers(w http.ResponseWriter, r *http.Request) {
	wr.discover(w, r, models.EntityTypeUser)
}

func (wr *WebRouter) discoverGroups(w http.ResponseWriter, r *http.Request) {
	wr.discover(w, r, models.EntityTypeGroup)
}

func (wr *WebRouter) discover(w http.ResponseWriter, r *http.Request, entityType string) {
	sender, ok := mustSender(w, r)
	if !ok {
		return
	}
	// A targeted subscription grants trust for one entity, not a view of
	// the whole local social graph.
	if sender.ConnectionType == models.ConnectionTargeted {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	entities, err := wr.storage.Entities.ListLocalByType(entityType)
	if err != nil {
		slog.Error("error listing local entities for discovery", "error", err, "type", entityType)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	refs := make([]models.EntityRef, len(entities))
	for i, e := range entities {
		refs[i] = e.Ref(wr.config.NodeHostname)
	}
	if entityType == models.EntityTypeUser {
		writeJSON(w, federation.DiscoverUsersResponse{Users: refs})
		return
	}
	writeJSON(w, federation.DiscoverGroupsResponse{Groups: refs})
}

func (wr *WebRouter) receiveFollow(w http.ResponseWriter, r *http.Request) {
	sender, ok := mustSender(w, r)
	if !ok {
		return
	}
	var req federation.FollowPayload
	if !decodeBody(w, r, &req) {
		return
	}

	page, err := wr.storage.Entities.GetByPUID(req.PageToFollowPUID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if page == nil || page.IsRemote() {
		writeStatus(w, federation.StatusError, "no such page on this node")
		return
	}

	follower, err := wr.Resolver.ResolveUser(models.EntityRef{
		PUID:        req.FollowerPUID,
		Hostname:    req.FollowerHostname,
		DisplayName: req.FollowerDisplayName,
	})
	if err != nil {
		slog.Error("error resolving follower", "error", err, "puid", req.FollowerPUID, "via", sender.Hostname)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := wr.storage.Follows.AddFollow(page.ID, follower.ID); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeStatus(w, federation.StatusSuccess, "follow recorded")
}

func (wr *WebRouter) receiveUnfollow(w http.ResponseWriter, r *http.Request) {
	if _, ok := mustSender(w, r); !ok {
		return
	}
	var req federation.UnfollowPayload
	if !decodeBody(w, r, &req) {
		return
	}

	page, err := wr.storage.Entities.GetByPUID(req.PagePUID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	follower, err := wr.storage.Entities.GetByPUID(req.FollowerPUID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if page == nil || follower == nil {
		writeStatus(w, federation.StatusInfo, "no such follow")
		return
	}
	if err := wr.storage.Follows.RemoveFollow(page.ID, follower.ID); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeStatus(w, federation.StatusSuccess, "follow removed")
}

func (wr *WebRouter) receivePost(w http.ResponseWriter, r *http.Request) {
	sender, ok := mustSender(w, r)
	if !ok {
		return
	}
	var req federation.PostPayload
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CUID == "" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	author, err := wr.Resolver.ResolveUser(req.Author)
	if err != nil {
		slog.Error("error resolving post author", "error", err, "puid", req.Author.PUID, "via", sender.Hostname)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var groupID *int
	if req.GroupPUID != "" {
		group, err := wr.storage.Entities.GetByPUID(req.GroupPUID)
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if group == nil {
			writeStatus(w, federation.StatusError, "unknown group for post")
			return
		}
		groupID = &group.ID
	}

	post := &models.Post{
		CUID:     req.CUID,
		AuthorID: author.ID,
		GroupID:  groupID,
		Content:  req.Content,
		Privacy:  req.Privacy,
	}
	if err := wr.storage.Posts.UpsertRemote(post); err != nil {
		slog.Error("error storing federated post", "error", err, "cuid", req.CUID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeStatus(w, federation.StatusSuccess, "post stored")
}

func (wr *WebRouter) deletePost(w http.ResponseWriter, r *http.Request) {
	sender, ok := mustSender(w, r)
	if !ok {
		return
	}
	var req federation.DeletePostPayload
	if !decodeBody(w, r, &req) {
		return
	}

	post, err := wr.storage.Posts.GetByCUID(req.CUID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if post == nil {
		// Deletion is idempotent; a redelivered retraction is fine.
		writeStatus(w, federation.StatusInfo, "post not known here")
		return
	}

	author, err := wr.storage.Entities.GetByID(post.AuthorID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if author == nil || author.HomeHostname() != sender.Hostname {
		writeStatus(w, federation.StatusError, "author does not live on your node")
		return
	}

	if err := wr.storage.Posts.DeleteByCUID(req.CUID); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeStatus(w, federation.StatusSuccess, "post deleted")
}

func (wr *WebRouter) profileUpdate(w http.ResponseWriter, r *http.Request) {
	sender, ok := mustSender(w, r)
	if !ok {
		return
	}
	var req federation.ProfileUpdatePayload
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Hostname != sender.Hostname {
		// Profile updates are only accepted first-hand from the entity's
		// own home node.
		writeStatus(w, federation.StatusError, "entity does not live on your node")
		return
	}

	existing, err := wr.storage.Entities.GetByPUID(req.PUID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	entityType := models.EntityTypeUser
	if existing != nil {
		entityType = existing.EntityType
	}
	_, err = wr.storage.Entities.ResolveStub(models.EntityRef{
		PUID:               req.PUID,
		Hostname:           req.Hostname,
		EntityType:         entityType,
		DisplayName:        req.DisplayName,
		ProfilePicturePath: req.ProfilePicturePath,
	})
	if err != nil {
		slog.Error("error applying profile update", "error", err, "puid", req.PUID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeStatus(w, federation.StatusSuccess, "profile updated")
}

func (wr *WebRouter) removeTag(w http.ResponseWriter, r *http.Request) {
	if _, ok := mustSender(w, r); !ok {
		return
	}
	var req federation.RemoveTagPayload
	if !decodeBody(w, r, &req) {
		return
	}
	if err := wr.storage.Posts.RemoveTag(req.CUID, req.SubjectPUID); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeStatus(w, federation.StatusSuccess, "tag removed")
}
