package federation

import "github.com/nodeweave/nodeweave/pkg/models"

// Inbound federation endpoints. Propagated payloads identify entities by
// puid/cuid only, so redelivery is always safe to apply on the receiver.
const (
	EndpointInitiatePairing       = "/federation/initiate_pairing"
	EndpointTargetedSubscribe     = "/federation/api/v1/targeted_subscribe"
	EndpointRequestViewerToken    = "/federation/api/v1/request_viewer_token"
	EndpointReceiveFriendRequest  = "/federation/api/v1/receive_friend_request"
	EndpointFriendRequestResponse = "/federation/api/v1/friend_request_response"
	EndpointUnfriend              = "/federation/api/v1/unfriend"
	EndpointReceiveGroupJoin      = "/federation/api/v1/receive_group_join_request"
	EndpointGroupMembership       = "/federation/api/v1/group_membership_update"
	EndpointGroupJoinSettings     = "/federation/api/v1/group_join_settings"
	EndpointDiscoverUsers         = "/federation/api/v1/discover_users"
	EndpointDiscoverGroups        = "/federation/api/v1/discover_groups"
	EndpointReceiveFollow         = "/federation/api/v1/receive_follow"
	EndpointReceiveUnfollow       = "/federation/api/v1/receive_unfollow"
	EndpointReceivePost           = "/federation/api/v1/receive_post"
	EndpointDeletePost            = "/federation/api/v1/delete_post"
	EndpointProfileUpdate         = "/federation/api/v1/profile_update"
	EndpointRemoveTag             = "/federation/api/v1/remove_tag"
)

// Tri-state result for mutation receivers. End users see only this, never
// which remote step failed.
const (
	StatusSuccess = "success"
	StatusInfo    = "info"
	StatusError   = "error"
)

type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type PairingRequest struct {
	Hostname string `json:"hostname"`
	Token    string `json:"token"`
	NuID     string `json:"nu_id"`
}

type PairingResponse struct {
	SharedSecret string `json:"shared_secret"`
	NuID         string `json:"nu_id"`
}

type SubscribeRequest struct {
	Hostname   string `json:"hostname"`
	NuID       string `json:"nu_id"`
	EntityType string `json:"entity_type"`
	EntityPUID string `json:"entity_puid"`
}

type ViewerTokenRequest struct {
	ViewerPUID     string `json:"viewer_puid"`
	TargetPUID     string `json:"target_puid"`
	ViewerSettings string `json:"viewer_settings,omitempty"`
}

type ViewerTokenResponse struct {
	ViewerToken string `json:"viewer_token"`
}

type FriendRequestPayload struct {
	SenderPUID               string `json:"sender_puid"`
	SenderHostname           string `json:"sender_hostname"`
	SenderDisplayName        string `json:"sender_display_name"`
	SenderProfilePicturePath string `json:"sender_profile_picture_path,omitempty"`
	ReceiverPUID             string `json:"receiver_puid"`
}

// Friend request response actions.
const (
	FriendActionAccept = "accept"
	FriendActionReject = "reject"
)

type FriendResponsePayload struct {
	SenderPUID   string `json:"sender_puid"`
	ReceiverPUID string `json:"receiver_puid"`
	Action       string `json:"action"`
}

type UnfriendPayload struct {
	ActorPUID  string `json:"actor_puid"`
	TargetPUID string `json:"target_puid"`
}

type GroupJoinRequestPayload struct {
	GroupPUID         string           `json:"group_puid"`
	RequesterData     models.EntityRef `json:"requester_data"`
	RulesAgreed       bool             `json:"rules_agreed"`
	QuestionResponses string           `json:"question_responses,omitempty"`
}

// Group membership lifecycle actions.
const (
	GroupActionAccept = "accept"
	GroupActionReject = "reject"
	GroupActionLeave  = "leave"
	GroupActionKick   = "kick"
	GroupActionBan    = "ban"
)

type GroupMembershipPayload struct {
	GroupPUID  string `json:"group_puid"`
	MemberPUID string `json:"member_puid"`
	Action     string `json:"action"`
}

type GroupJoinSettingsResponse struct {
	JoinRules       string `json:"join_rules"`
	JoinRulesPublic bool   `json:"join_rules_public"`
	JoinQuestions   string `json:"join_questions"`
}

type FollowPayload struct {
	PageToFollowPUID    string `json:"page_to_follow_puid"`
	FollowerPUID        string `json:"follower_puid"`
	FollowerDisplayName string `json:"follower_display_name"`
	FollowerHostname    string `json:"follower_hostname"`
}

type UnfollowPayload struct {
	PagePUID     string `json:"page_puid"`
	FollowerPUID string `json:"follower_puid"`
}

type PostPayload struct {
	CUID      string           `json:"cuid"`
	Author    models.EntityRef `json:"author"`
	GroupPUID string           `json:"group_puid,omitempty"`
	Content   string           `json:"content"`
	Privacy   string           `json:"privacy"`
}

type DeletePostPayload struct {
	CUID       string `json:"cuid"`
	AuthorPUID string `json:"author_puid"`
}

type ProfileUpdatePayload struct {
	PUID               string `json:"puid"`
	Hostname           string `json:"hostname"`
	DisplayName        string `json:"display_name"`
	ProfilePicturePath string `json:"profile_picture_path,omitempty"`
}

type RemoveTagPayload struct {
	CUID        string `json:"cuid"`
	SubjectPUID string `json:"subject_puid"`
}

type DiscoverUsersResponse struct {
	Users []models.EntityRef `json:"users"`
}

type DiscoverGroupsResponse struct {
	Groups []models.EntityRef `json:"groups"`
}
