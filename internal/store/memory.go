package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pairchat/pairchat/internal/model"
)

// Memory is an in-process Store used by tests and single-node dev runs.
type Memory struct {
	mu         sync.RWMutex
	nextUserID int64
	users      map[int64]*model.User
	codes      map[int]model.ChatCode
	convs      map[uuid.UUID]*model.Conversation
	pairs      map[[2]int64]uuid.UUID
	messages   map[uuid.UUID][]model.Message
	lastSentAt time.Time
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[int64]*model.User),
		codes:    make(map[int]model.ChatCode),
		convs:    make(map[uuid.UUID]*model.Conversation),
		pairs:    make(map[[2]int64]uuid.UUID),
		messages: make(map[uuid.UUID][]model.Message),
	}
}

// Ping always succeeds.
func (m *Memory) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() {}

// sentTime returns a strictly increasing timestamp so sent_at doubles as a
// total order within a conversation, matching the cursor contract.
func (m *Memory) sentTime() time.Time {
	now := time.Now().UTC()
	if !now.After(m.lastSentAt) {
		now = m.lastSentAt.Add(time.Nanosecond)
	}
	m.lastSentAt = now
	return now
}

// CreateUser inserts a new account.
func (m *Memory) CreateUser(ctx context.Context, username, email, passwordHash string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username == username || u.Email == email {
			return nil, ErrDuplicateUser
		}
	}
	m.nextUserID++
	u := &model.User{
		ID:           m.nextUserID,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

// UserByID looks up a user by id.
func (m *Memory) UserByID(ctx context.Context, id int64) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// UserByUsername looks up a user by username.
func (m *Memory) UserByUsername(ctx context.Context, username string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// UserByEmail looks up a user by email.
func (m *Memory) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// UpdateUser replaces username and email.
func (m *Memory) UpdateUser(ctx context.Context, id int64, username, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	for _, other := range m.users {
		if other.ID != id && (other.Username == username || other.Email == email) {
			return nil, ErrDuplicateUser
		}
	}
	u.Username = username
	u.Email = email
	cp := *u
	return &cp, nil
}

// UpdatePasswordHash replaces the stored hash.
func (m *Memory) UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

// DeleteUser removes the account and cascades to codes, conversations and messages.
func (m *Memory) DeleteUser(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	for code, c := range m.codes {
		if c.UserID == id {
			delete(m.codes, code)
		}
	}
	for convID, c := range m.convs {
		if c.HasParticipant(id) {
			delete(m.convs, convID)
			delete(m.pairs, [2]int64{c.UserID1, c.UserID2})
			delete(m.messages, convID)
		}
	}
	return nil
}

// CreateChatCode inserts a code, enforcing the per-user cap.
func (m *Memory) CreateChatCode(ctx context.Context, code int, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.codes[code]; exists {
		return ErrDuplicateCode
	}
	count := 0
	for _, c := range m.codes {
		if c.UserID == userID {
			count++
		}
	}
	if count >= model.MaxChatCodesPerUser {
		return ErrCodeLimit
	}
	m.codes[code] = model.ChatCode{Code: code, UserID: userID, CreatedAt: time.Now().UTC()}
	return nil
}

// ChatCodeOwner returns the issuer of a code.
func (m *Memory) ChatCodeOwner(ctx context.Context, code int) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.codes[code]
	if !ok {
		return 0, ErrNotFound
	}
	return c.UserID, nil
}

// ListChatCodes returns the user's codes, oldest first.
func (m *Memory) ListChatCodes(ctx context.Context, userID int64) ([]model.ChatCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var codes []model.ChatCode
	for _, c := range m.codes {
		if c.UserID == userID {
			codes = append(codes, c)
		}
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i].CreatedAt.Before(codes[j].CreatedAt) })
	return codes, nil
}

// DeleteChatCode removes a code owned by userID.
func (m *Memory) DeleteChatCode(ctx context.Context, code int, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[code]
	if !ok || c.UserID != userID {
		return ErrNotFound
	}
	delete(m.codes, code)
	return nil
}

// CreateConversation inserts the canonical pair row.
func (m *Memory) CreateConversation(ctx context.Context, userA, userB int64) (*model.Conversation, error) {
	first, second := model.CanonicalPair(userA, userB)
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]int64{first, second}
	if _, exists := m.pairs[key]; exists {
		return nil, ErrConversationExists
	}
	now := time.Now().UTC()
	c := &model.Conversation{
		ID:             uuid.New(),
		UserID1:        first,
		UserID2:        second,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	m.convs[c.ID] = c
	m.pairs[key] = c.ID
	cp := *c
	return &cp, nil
}

// ConversationByID looks up a conversation.
func (m *Memory) ConversationByID(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// ListConversations returns the user's conversations, most recently active first.
func (m *Memory) ListConversations(ctx context.Context, userID int64) ([]model.ConversationSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.ConversationSummary
	for _, c := range m.convs {
		if !c.HasParticipant(userID) {
			continue
		}
		peer := c.Peer(userID)
		s := model.ConversationSummary{
			ID:             c.ID,
			Peer:           peer,
			CreatedAt:      c.CreatedAt,
			LastActivityAt: c.LastActivityAt,
		}
		if u, ok := m.users[peer]; ok {
			s.PeerUsername = u.Username
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.After(out[j].LastActivityAt) })
	return out, nil
}

// IsParticipant reports conversation membership; a missing conversation
// reports false rather than an error.
func (m *Memory) IsParticipant(ctx context.Context, conversationID uuid.UUID, userID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.convs[conversationID]
	if !ok {
		return false, nil
	}
	return c.HasParticipant(userID), nil
}

// InsertMessage persists a message and bumps last-activity.
func (m *Memory) InsertMessage(ctx context.Context, conversationID uuid.UUID, senderID int64, content string) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[conversationID]
	if !ok || !c.HasParticipant(senderID) {
		return nil, ErrNotParticipant
	}
	msg := model.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		SentAt:         m.sentTime(),
	}
	m.messages[conversationID] = append(m.messages[conversationID], msg)
	c.LastActivityAt = msg.SentAt
	cp := msg
	return &cp, nil
}

// PageMessages returns one page strictly older than before, newest first.
func (m *Memory) PageMessages(ctx context.Context, conversationID uuid.UUID, before *time.Time, limit int) ([]model.Message, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var page []model.Message
	for _, msg := range m.messages[conversationID] {
		if before != nil && !msg.SentAt.Before(*before) {
			continue
		}
		page = append(page, msg)
	}
	sort.Slice(page, func(i, j int) bool { return page[i].SentAt.After(page[j].SentAt) })

	hasMore := len(page) > limit
	if hasMore {
		page = page[:limit]
	}
	return page, hasMore, nil
}

func (m *Memory) findMessage(conversationID, messageID uuid.UUID) (int, *model.Message) {
	msgs := m.messages[conversationID]
	for i := range msgs {
		if msgs[i].ID == messageID {
			return i, &msgs[i]
		}
	}
	return -1, nil
}

// EditMessage replaces content and stamps edited_at; author only.
func (m *Memory) EditMessage(ctx context.Context, conversationID, messageID uuid.UUID, editorID int64, content string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, msg := m.findMessage(conversationID, messageID)
	if msg == nil {
		return time.Time{}, ErrNotFound
	}
	if msg.SenderID != editorID {
		return time.Time{}, ErrNotAuthor
	}
	now := time.Now().UTC()
	if now.Before(msg.SentAt) {
		now = msg.SentAt
	}
	msg.Content = content
	msg.EditedAt = &now
	return now, nil
}

// DeleteMessage removes a message; author only.
func (m *Memory) DeleteMessage(ctx context.Context, conversationID, messageID uuid.UUID, editorID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, msg := m.findMessage(conversationID, messageID)
	if msg == nil {
		return ErrNotFound
	}
	if msg.SenderID != editorID {
		return ErrNotAuthor
	}
	msgs := m.messages[conversationID]
	m.messages[conversationID] = append(msgs[:i], msgs[i+1:]...)
	return nil
}
