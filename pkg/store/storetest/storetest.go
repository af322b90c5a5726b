// Package storetest provides in-memory store implementations for tests.
package storetest

import (
	"sort"
	"sync"
	"time"

	"github.com/nodeweave/nodeweave/pkg/models"
	"github.com/nodeweave/nodeweave/pkg/store"
)

// New wires a full in-memory store set sharing one entity table.
func New() (store.Stores, *Fakes) {
	entities := &EntityFake{byPUID: map[string]*models.Entity{}}
	f := &Fakes{
		Nodes:    &NodeFake{nodes: map[string]*models.Node{}},
		Tokens:   &TokenFake{tokens: map[string]*models.PairingToken{}},
		Entities: entities,
		Friends:  &FriendFake{entities: entities, requests: map[[2]int]*models.FriendRequest{}, friendships: map[[2]int]bool{}},
		Follows:  &FollowFake{entities: entities, follows: map[[2]int]bool{}},
		Groups:   &GroupFake{entities: entities, memberships: map[[2]int]*models.GroupMembership{}, settings: map[int]*models.GroupSettings{}},
		Posts:    &PostFake{entities: entities, posts: map[string]*models.Post{}, tags: map[[2]int]bool{}},
		Outbox:   &OutboxFake{},
	}
	return store.Stores{
		Nodes:         f.Nodes,
		PairingTokens: f.Tokens,
		Entities:      f.Entities,
		Friends:       f.Friends,
		Follows:       f.Follows,
		Groups:        f.Groups,
		Posts:         f.Posts,
		Outbox:        f.Outbox,
	}, f
}

// Fakes exposes the concrete fakes for test assertions.
type Fakes struct {
	Nodes    *NodeFake
	Tokens   *TokenFake
	Entities *EntityFake
	Friends  *FriendFake
	Follows  *FollowFake
	Groups   *GroupFake
	Posts    *PostFake
	Outbox   *OutboxFake
}

type NodeFake struct {
	mu     sync.Mutex
	nextID int
	nodes  map[string]*models.Node
}

func (f *NodeFake) GetByHostname(hostname string) (*models.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[hostname]
	if !ok {
		return nil, nil
	}
	copied := *n
	return &copied, nil
}

func (f *NodeFake) GetAll() ([]*models.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.Node{}
	for _, n := range f.nodes {
		copied := *n
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hostname < out[j].Hostname })
	return out, nil
}

func (f *NodeFake) GetConnected(includeTargeted bool) ([]*models.Node, error) {
	all, _ := f.GetAll()
	out := []*models.Node{}
	for _, n := range all {
		if n.Status != models.NodeStatusConnected {
			continue
		}
		if !includeTargeted && n.ConnectionType != models.ConnectionFull {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (f *NodeFake) InsertPending(hostname, connectionType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.nodes[hostname]; ok {
		return store.ErrAlreadyExists
	}
	f.nextID++
	f.nodes[hostname] = &models.Node{
		ID:             f.nextID,
		Hostname:       hostname,
		Status:         models.NodeStatusPending,
		ConnectionType: connectionType,
		Created:        time.Now(),
	}
	return nil
}

func (f *NodeFake) MarkConnected(hostname, sharedSecret, nuID, connectionType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[hostname]
	if !ok {
		return nil
	}
	n.SharedSecret = &sharedSecret
	n.NuID = &nuID
	n.Status = models.NodeStatusConnected
	if n.ConnectionType != models.ConnectionFull {
		n.ConnectionType = connectionType
	}
	return nil
}

func (f *NodeFake) SetStatus(hostname, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.nodes[hostname]; ok {
		n.Status = status
	}
	return nil
}

func (f *NodeFake) SetNickname(hostname, nickname string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.nodes[hostname]; ok {
		n.Nickname = &nickname
	}
	return nil
}

func (f *NodeFake) Delete(hostname string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.nodes, hostname)
	return nil
}

// AddConnected seeds a connected node, a convenience for tests.
func (f *NodeFake) AddConnected(hostname, secret, connectionType string) {
	f.InsertPending(hostname, connectionType)
	f.MarkConnected(hostname, secret, "nu-"+hostname, connectionType)
}

type TokenFake struct {
	mu     sync.Mutex
	tokens map[string]*models.PairingToken
}

func (f *TokenFake) Create(token *models.PairingToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *token
	f.tokens[token.Token] = &copied
	return nil
}

func (f *TokenFake) Consume(token string) (*models.PairingToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[token]
	if !ok {
		return nil, nil
	}
	delete(f.tokens, token)
	return t, nil
}

func (f *TokenFake) PurgeExpired(now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, t := range f.tokens {
		if t.Expired(now) {
			delete(f.tokens, k)
		}
	}
	return nil
}

type EntityFake struct {
	mu     sync.Mutex
	nextID int
	byPUID map[string]*models.Entity
}

func (f *EntityFake) GetByID(id int) (*models.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.byPUID {
		if e.ID == id {
			copied := *e
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *EntityFake) GetByPUID(puid string) (*models.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.byPUID[puid]
	if !ok {
		return nil, nil
	}
	copied := *e
	return &copied, nil
}

func (f *EntityFake) CreateLocal(entity *models.Entity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byPUID[entity.PUID]; ok {
		return store.ErrAlreadyExists
	}
	f.nextID++
	entity.ID = f.nextID
	entity.Created = time.Now()
	copied := *entity
	f.byPUID[entity.PUID] = &copied
	return nil
}

func (f *EntityFake) ResolveStub(ref models.EntityRef) (*models.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.byPUID[ref.PUID]; ok {
		if e.Hostname != nil {
			e.DisplayName = ref.DisplayName
			if ref.ProfilePicturePath != "" {
				pic := ref.ProfilePicturePath
				e.ProfilePicturePath = &pic
			}
		}
		copied := *e
		return &copied, nil
	}
	f.nextID++
	host := ref.Hostname
	e := &models.Entity{
		ID:          f.nextID,
		PUID:        ref.PUID,
		Hostname:    &host,
		EntityType:  ref.EntityType,
		DisplayName: ref.DisplayName,
		Created:     time.Now(),
	}
	if ref.ProfilePicturePath != "" {
		pic := ref.ProfilePicturePath
		e.ProfilePicturePath = &pic
	}
	f.byPUID[ref.PUID] = e
	copied := *e
	return &copied, nil
}

func (f *EntityFake) ListLocalByType(entityType string) ([]*models.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.Entity{}
	for _, e := range f.byPUID {
		if e.Hostname == nil && e.EntityType == entityType {
			copied := *e
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

func (f *EntityFake) UpdateProfile(id int, displayName string, picturePath *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.byPUID {
		if e.ID == id {
			e.DisplayName = displayName
			if picturePath != nil {
				e.ProfilePicturePath = picturePath
			}
		}
	}
	return nil
}

// AddLocal seeds a local entity, a convenience for tests.
func (f *EntityFake) AddLocal(puid, entityType, displayName string) *models.Entity {
	e := &models.Entity{PUID: puid, EntityType: entityType, DisplayName: displayName}
	f.CreateLocal(e)
	return e
}

// AddRemote seeds a remote stub, a convenience for tests.
func (f *EntityFake) AddRemote(puid, hostname, entityType, displayName string) *models.Entity {
	e, _ := f.ResolveStub(models.EntityRef{
		PUID:        puid,
		Hostname:    hostname,
		EntityType:  entityType,
		DisplayName: displayName,
	})
	return e
}

// Count returns the number of entity rows.
func (f *EntityFake) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byPUID)
}

func pairKey(aID, bID int) [2]int {
	if aID < bID {
		return [2]int{aID, bID}
	}
	return [2]int{bID, aID}
}

type FriendFake struct {
	mu          sync.Mutex
	entities    *EntityFake
	requests    map[[2]int]*models.FriendRequest
	friendships map[[2]int]bool
}

func (f *FriendFake) GetRequest(senderID, receiverID int) (*models.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[[2]int{senderID, receiverID}]
	if !ok {
		return nil, nil
	}
	copied := *r
	return &copied, nil
}

func (f *FriendFake) UpsertRequest(senderID, receiverID int, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := [2]int{senderID, receiverID}
	if r, ok := f.requests[key]; ok {
		r.Status = status
		return nil
	}
	f.requests[key] = &models.FriendRequest{
		ID:         len(f.requests) + 1,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     status,
		Created:    time.Now(),
	}
	return nil
}

func (f *FriendFake) SetRequestStatus(senderID, receiverID int, status string) error {
	return f.UpsertRequest(senderID, receiverID, status)
}

func (f *FriendFake) DeleteRequest(senderID, receiverID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.requests, [2]int{senderID, receiverID})
	return nil
}

func (f *FriendFake) ListPendingReceived(receiverID int) ([]*models.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.FriendRequest{}
	for _, r := range f.requests {
		if r.ReceiverID == receiverID && r.Status == models.FriendRequestPending {
			copied := *r
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *FriendFake) AddFriendship(aID, bID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.friendships[pairKey(aID, bID)] = true
	return nil
}

func (f *FriendFake) RemoveFriendship(aID, bID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.friendships, pairKey(aID, bID))
	return nil
}

func (f *FriendFake) AreFriends(aID, bID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.friendships[pairKey(aID, bID)], nil
}

func (f *FriendFake) friendIDs(userID int) []int {
	out := []int{}
	for pair := range f.friendships {
		if pair[0] == userID {
			out = append(out, pair[1])
		} else if pair[1] == userID {
			out = append(out, pair[0])
		}
	}
	return out
}

func (f *FriendFake) ListFriendHostnames(userID int) ([]string, error) {
	f.mu.Lock()
	ids := f.friendIDs(userID)
	f.mu.Unlock()
	return f.entities.hostnamesOf(ids), nil
}

func (f *FriendFake) ListRelatedHostnames(userID int) ([]string, error) {
	hostnames, _ := f.ListFriendHostnames(userID)
	return hostnames, nil
}

func (f *EntityFake) hostnamesOf(ids []int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	out := []string{}
	for _, e := range f.byPUID {
		for _, id := range ids {
			if e.ID == id && e.Hostname != nil && !seen[*e.Hostname] {
				seen[*e.Hostname] = true
				out = append(out, *e.Hostname)
			}
		}
	}
	sort.Strings(out)
	return out
}

type FollowFake struct {
	mu       sync.Mutex
	entities *EntityFake
	follows  map[[2]int]bool
}

func (f *FollowFake) AddFollow(pageID, followerID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.follows[[2]int{pageID, followerID}] = true
	return nil
}

func (f *FollowFake) RemoveFollow(pageID, followerID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.follows, [2]int{pageID, followerID})
	return nil
}

func (f *FollowFake) IsFollowing(pageID, followerID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.follows[[2]int{pageID, followerID}], nil
}

func (f *FollowFake) ListFollowerHostnames(pageID int) ([]string, error) {
	f.mu.Lock()
	ids := []int{}
	for pair := range f.follows {
		if pair[0] == pageID {
			ids = append(ids, pair[1])
		}
	}
	f.mu.Unlock()
	return f.entities.hostnamesOf(ids), nil
}

type GroupFake struct {
	mu          sync.Mutex
	entities    *EntityFake
	memberships map[[2]int]*models.GroupMembership
	settings    map[int]*models.GroupSettings
}

func (f *GroupFake) GetMembership(groupID, memberID int) (*models.GroupMembership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memberships[[2]int{groupID, memberID}]
	if !ok {
		return nil, nil
	}
	copied := *m
	return &copied, nil
}

func (f *GroupFake) UpsertMembership(m *models.GroupMembership) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *m
	f.memberships[[2]int{m.GroupID, m.MemberID}] = &copied
	return nil
}

func (f *GroupFake) SetMembershipStatus(groupID, memberID int, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.memberships[[2]int{groupID, memberID}]; ok {
		m.Status = status
	}
	return nil
}

func (f *GroupFake) DeleteMembership(groupID, memberID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.memberships, [2]int{groupID, memberID})
	return nil
}

func (f *GroupFake) ListMemberHostnames(groupID int) ([]string, error) {
	f.mu.Lock()
	ids := []int{}
	for pair, m := range f.memberships {
		if pair[0] == groupID && m.Status == models.MembershipActive {
			ids = append(ids, pair[1])
		}
	}
	f.mu.Unlock()
	return f.entities.hostnamesOf(ids), nil
}

func (f *GroupFake) GetSettings(groupID int) (*models.GroupSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settings[groupID]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (f *GroupFake) SaveSettings(settings *models.GroupSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *settings
	f.settings[settings.GroupID] = &copied
	return nil
}

type PostFake struct {
	mu       sync.Mutex
	entities *EntityFake
	nextID   int
	posts    map[string]*models.Post
	tags     map[[2]int]bool
}

func (f *PostFake) GetByCUID(cuid string) (*models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[cuid]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

func (f *PostFake) Create(post *models.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.posts[post.CUID]; ok {
		return store.ErrAlreadyExists
	}
	f.nextID++
	post.ID = f.nextID
	post.Created = time.Now()
	post.Updated = post.Created
	copied := *post
	f.posts[post.CUID] = &copied
	return nil
}

func (f *PostFake) UpsertRemote(post *models.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.posts[post.CUID]; ok {
		existing.Content = post.Content
		existing.Privacy = post.Privacy
		existing.Updated = time.Now()
		post.ID = existing.ID
		return nil
	}
	f.nextID++
	post.ID = f.nextID
	post.Created = time.Now()
	post.Updated = post.Created
	copied := *post
	f.posts[post.CUID] = &copied
	return nil
}

func (f *PostFake) UpdateContent(cuid, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.posts[cuid]; ok {
		p.Content = content
		p.Updated = time.Now()
	}
	return nil
}

func (f *PostFake) DeleteByCUID(cuid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.posts, cuid)
	return nil
}

func (f *PostFake) ListByAuthor(authorID int) ([]*models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.Post{}
	for _, p := range f.posts {
		if p.AuthorID == authorID {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *PostFake) TagEntity(postID, entityID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags[[2]int{postID, entityID}] = true
	return nil
}

func (f *PostFake) RemoveTag(cuid, subjectPUID string) error {
	subject, _ := f.entities.GetByPUID(subjectPUID)
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[cuid]
	if !ok || subject == nil {
		return nil
	}
	delete(f.tags, [2]int{p.ID, subject.ID})
	return nil
}

// TagCount returns the number of tag rows, a convenience for tests.
func (f *PostFake) TagCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tags)
}

type OutboxFake struct {
	mu     sync.Mutex
	nextID int64
	items  []*models.OutboxItem
}

func (f *OutboxFake) Enqueue(items []*models.OutboxItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range items {
		f.nextID++
		item.ID = f.nextID
		item.Status = models.OutboxPending
		item.Created = time.Now()
		copied := *item
		f.items = append(f.items, &copied)
	}
	return nil
}

func (f *OutboxFake) NextReady(now time.Time, limit int) ([]*models.OutboxItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lowest := map[string]*models.OutboxItem{}
	for _, item := range f.items {
		if item.Status != models.OutboxPending {
			continue
		}
		key := item.TargetHostname + "|" + item.BatchID
		if cur, ok := lowest[key]; !ok || item.Seq < cur.Seq {
			lowest[key] = item
		}
	}
	out := []*models.OutboxItem{}
	for _, item := range lowest {
		if item.NextAttempt.After(now) {
			continue
		}
		copied := *item
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *OutboxFake) MarkDelivered(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		if item.ID == id {
			item.Status = models.OutboxDelivered
		}
	}
	return nil
}

func (f *OutboxFake) MarkFailed(id int64, attempts int, nextAttempt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		if item.ID == id {
			item.Attempts = attempts
			item.NextAttempt = nextAttempt
		}
	}
	return nil
}

func (f *OutboxFake) MarkDead(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var dead *models.OutboxItem
	for _, item := range f.items {
		if item.ID == id {
			dead = item
			break
		}
	}
	if dead == nil {
		return nil
	}
	for _, item := range f.items {
		if item.BatchID == dead.BatchID && item.Seq >= dead.Seq && item.Status == models.OutboxPending {
			item.Status = models.OutboxDead
		}
	}
	return nil
}

func (f *OutboxFake) PendingCount() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, item := range f.items {
		if item.Status == models.OutboxPending {
			count++
		}
	}
	return count, nil
}

// Items returns a snapshot of everything enqueued, in insertion order.
func (f *OutboxFake) Items() []*models.OutboxItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.OutboxItem, len(f.items))
	for i, item := range f.items {
		copied := *item
		out[i] = &copied
	}
	return out
}
