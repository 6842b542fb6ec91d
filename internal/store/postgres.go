package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pairchat/pairchat/internal/model"
)

// Postgres implements Store on top of a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// ConnectPostgres creates a pgx pool from the DSN and verifies it with a ping.
func ConnectPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(normalizeDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	if cfg.MaxConns == 0 {
		cfg.MaxConns = 8
	}
	if cfg.MaxConnIdleTime == 0 {
		cfg.MaxConnIdleTime = 5 * time.Minute
	}
	if cfg.HealthCheckPeriod == 0 {
		cfg.HealthCheckPeriod = time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Pool exposes the underlying pool so the LISTEN/NOTIFY bridge can share it.
func (p *Postgres) Pool() *pgxpool.Pool {
	return p.pool
}

// Ping verifies database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// normalizeDSN converts known non-pgx DSN variants to a pgx-compatible DSN,
// e.g. SQLAlchemy-style driver suffixes found in shared .env files.
func normalizeDSN(dsn string) string {
	s := strings.TrimSpace(dsn)
	s = strings.Replace(s, "postgresql+asyncpg://", "postgresql://", 1)
	s = strings.Replace(s, "postgres+asyncpg://", "postgres://", 1)
	return s
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// CreateUser inserts a new account row.
func (p *Postgres) CreateUser(ctx context.Context, username, email, passwordHash string) (*model.User, error) {
	u := &model.User{Username: username, Email: email, PasswordHash: passwordHash}
	err := p.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		username, email, passwordHash,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateUser
		}
		return nil, fmt.Errorf("postgres: create user: %w", err)
	}
	return u, nil
}

func (p *Postgres) userBy(ctx context.Context, where string, arg any) (*model.User, error) {
	u := &model.User{}
	err := p.pool.QueryRow(ctx,
		`SELECT id, username, email, password_hash, created_at FROM users WHERE `+where,
		arg,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get user: %w", err)
	}
	return u, nil
}

// UserByID looks up a user by id.
func (p *Postgres) UserByID(ctx context.Context, id int64) (*model.User, error) {
	return p.userBy(ctx, "id = $1", id)
}

// UserByUsername looks up a user by username.
func (p *Postgres) UserByUsername(ctx context.Context, username string) (*model.User, error) {
	return p.userBy(ctx, "username = $1", username)
}

// UserByEmail looks up a user by email.
func (p *Postgres) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	return p.userBy(ctx, "email = $1", email)
}

// UpdateUser replaces the username and email of an account.
func (p *Postgres) UpdateUser(ctx context.Context, id int64, username, email string) (*model.User, error) {
	u := &model.User{ID: id, Username: username, Email: email}
	err := p.pool.QueryRow(ctx,
		`UPDATE users SET username = $2, email = $3
		 WHERE id = $1
		 RETURNING password_hash, created_at`,
		id, username, email,
	).Scan(&u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateUser
		}
		return nil, fmt.Errorf("postgres: update user: %w", err)
	}
	return u, nil
}

// UpdatePasswordHash replaces the stored password hash.
func (p *Postgres) UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("postgres: update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser removes the account. Codes, conversations and messages cascade
// via foreign keys.
func (p *Postgres) DeleteUser(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateChatCode inserts a code for userID, enforcing the per-user cap in the
// same statement so concurrent issuers cannot exceed it.
func (p *Postgres) CreateChatCode(ctx context.Context, code int, userID int64) error {
	tag, err := p.pool.Exec(ctx,
		`WITH user_code_count AS (
		     SELECT COUNT(*)::INT AS count FROM chat_codes WHERE user_id = $2
		 )
		 INSERT INTO chat_codes (code, user_id)
		 SELECT $1, $2 FROM user_code_count
		 WHERE user_code_count.count < $3`,
		code, userID, model.MaxChatCodesPerUser)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("postgres: create chat code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCodeLimit
	}
	return nil
}

// ChatCodeOwner returns the issuer of a code.
func (p *Postgres) ChatCodeOwner(ctx context.Context, code int) (int64, error) {
	var owner int64
	err := p.pool.QueryRow(ctx,
		`SELECT user_id FROM chat_codes WHERE code = $1`, code).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: chat code owner: %w", err)
	}
	return owner, nil
}

// ListChatCodes returns the user's unredeemed codes, oldest first.
func (p *Postgres) ListChatCodes(ctx context.Context, userID int64) ([]model.ChatCode, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT code, user_id, created_at FROM chat_codes
		 WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list chat codes: %w", err)
	}
	defer rows.Close()

	var codes []model.ChatCode
	for rows.Next() {
		var c model.ChatCode
		if err := rows.Scan(&c.Code, &c.UserID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan chat code: %w", err)
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

// DeleteChatCode removes a code owned by userID.
func (p *Postgres) DeleteChatCode(ctx context.Context, code int, userID int64) error {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM chat_codes WHERE code = $1 AND user_id = $2`, code, userID)
	if err != nil {
		return fmt.Errorf("postgres: delete chat code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateConversation inserts the canonical pair row.
func (p *Postgres) CreateConversation(ctx context.Context, userA, userB int64) (*model.Conversation, error) {
	first, second := model.CanonicalPair(userA, userB)
	c := &model.Conversation{UserID1: first, UserID2: second}
	err := p.pool.QueryRow(ctx,
		`INSERT INTO conversations (user_id_1, user_id_2)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id_1, user_id_2) DO NOTHING
		 RETURNING id, created_at, last_activity_at`,
		first, second,
	).Scan(&c.ID, &c.CreatedAt, &c.LastActivityAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConversationExists
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: create conversation: %w", err)
	}
	return c, nil
}

// ConversationByID looks up a conversation.
func (p *Postgres) ConversationByID(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	c := &model.Conversation{}
	err := p.pool.QueryRow(ctx,
		`SELECT id, user_id_1, user_id_2, created_at, last_activity_at
		 FROM conversations WHERE id = $1`, id,
	).Scan(&c.ID, &c.UserID1, &c.UserID2, &c.CreatedAt, &c.LastActivityAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get conversation: %w", err)
	}
	return c, nil
}

// ListConversations returns the user's conversations, most recently active first.
func (p *Postgres) ListConversations(ctx context.Context, userID int64) ([]model.ConversationSummary, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT c.id,
		        CASE WHEN c.user_id_1 = $1 THEN c.user_id_2 ELSE c.user_id_1 END AS peer_id,
		        u.username,
		        c.created_at,
		        c.last_activity_at
		 FROM conversations c
		 JOIN users u ON u.id = CASE WHEN c.user_id_1 = $1 THEN c.user_id_2 ELSE c.user_id_1 END
		 WHERE c.user_id_1 = $1 OR c.user_id_2 = $1
		 ORDER BY c.last_activity_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list conversations: %w", err)
	}
	defer rows.Close()

	var out []model.ConversationSummary
	for rows.Next() {
		var s model.ConversationSummary
		if err := rows.Scan(&s.ID, &s.Peer, &s.PeerUsername, &s.CreatedAt, &s.LastActivityAt); err != nil {
			return nil, fmt.Errorf("postgres: scan conversation: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// IsParticipant reports conversation membership. A missing conversation
// reports false, not an error, so callers cannot distinguish the two cases.
func (p *Postgres) IsParticipant(ctx context.Context, conversationID uuid.UUID, userID int64) (bool, error) {
	var ok bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM conversations
		     WHERE id = $1 AND (user_id_1 = $2 OR user_id_2 = $2)
		 )`, conversationID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("postgres: verify participant: %w", err)
	}
	return ok, nil
}

// insertMessage writes the message row and bumps the conversation's
// last-activity time inside tx.
func (p *Postgres) insertMessage(ctx context.Context, tx pgx.Tx, conversationID uuid.UUID, senderID int64, content string) (*model.Message, error) {
	m := &model.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
	}
	err := tx.QueryRow(ctx,
		`INSERT INTO messages (id, conversation_id, user_sent_id, content)
		 VALUES ($1, $2, $3, $4)
		 RETURNING sent_at`,
		m.ID, conversationID, senderID, content,
	).Scan(&m.SentAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: insert message: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE conversations SET last_activity_at = $2 WHERE id = $1`,
		conversationID, m.SentAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: touch conversation: %w", err)
	}
	return m, nil
}

// InsertMessage persists a message after re-checking membership, then bumps
// the conversation's last-activity time.
func (p *Postgres) InsertMessage(ctx context.Context, conversationID uuid.UUID, senderID int64, content string) (*model.Message, error) {
	participant, err := p.IsParticipant(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	if !participant {
		return nil, ErrNotParticipant
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	m, err := p.insertMessage(ctx, tx, conversationID, senderID, content)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit: %w", err)
	}
	return m, nil
}

// InsertMessageAndNotify persists a message and emits its channel
// notification in the same transaction. The payload is built server-side so
// it commits, or not, with the row.
func (p *Postgres) InsertMessageAndNotify(ctx context.Context, conversationID uuid.UUID, senderID int64, content, channel string) (*model.Message, error) {
	participant, err := p.IsParticipant(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	if !participant {
		return nil, ErrNotParticipant
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	m, err := p.insertMessage(ctx, tx, conversationID, senderID, content)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`SELECT pg_notify($1, json_build_object(
		     'user_id', $2::BIGINT,
		     'content', $3::TEXT,
		     'sent_at', $4::TIMESTAMPTZ
		 )::TEXT)`,
		channel, senderID, content, m.SentAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: notify %s: %w", channel, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit: %w", err)
	}
	return m, nil
}

// PageMessages returns one page strictly older than before, newest first.
// One extra row is fetched to compute hasMore without a second query.
func (p *Postgres) PageMessages(ctx context.Context, conversationID uuid.UUID, before *time.Time, limit int) ([]model.Message, bool, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, conversation_id, user_sent_id, content, sent_at, edited_at
		 FROM messages
		 WHERE conversation_id = $1
		   AND ($2::TIMESTAMPTZ IS NULL OR sent_at < $2::TIMESTAMPTZ)
		 ORDER BY sent_at DESC
		 LIMIT $3`, conversationID, before, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("postgres: page messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.SentAt, &m.EditedAt); err != nil {
			return nil, false, fmt.Errorf("postgres: scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}
	return messages, hasMore, nil
}

func (p *Postgres) messageAuthor(ctx context.Context, conversationID, messageID uuid.UUID) (int64, error) {
	var author int64
	err := p.pool.QueryRow(ctx,
		`SELECT user_sent_id FROM messages
		 WHERE id = $1 AND conversation_id = $2`,
		messageID, conversationID).Scan(&author)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: verify message: %w", err)
	}
	return author, nil
}

// EditMessage replaces the content and stamps edited_at. Only the author may edit.
func (p *Postgres) EditMessage(ctx context.Context, conversationID, messageID uuid.UUID, editorID int64, content string) (time.Time, error) {
	author, err := p.messageAuthor(ctx, conversationID, messageID)
	if err != nil {
		return time.Time{}, err
	}
	if author != editorID {
		return time.Time{}, ErrNotAuthor
	}

	var editedAt time.Time
	err = p.pool.QueryRow(ctx,
		`UPDATE messages SET content = $3, edited_at = CURRENT_TIMESTAMP
		 WHERE id = $1 AND user_sent_id = $2
		 RETURNING edited_at`,
		messageID, editorID, content).Scan(&editedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("postgres: edit message: %w", err)
	}
	return editedAt, nil
}

// DeleteMessage removes a message. Only the author may delete.
func (p *Postgres) DeleteMessage(ctx context.Context, conversationID, messageID uuid.UUID, editorID int64) error {
	author, err := p.messageAuthor(ctx, conversationID, messageID)
	if err != nil {
		return err
	}
	if author != editorID {
		return ErrNotAuthor
	}

	_, err = p.pool.Exec(ctx,
		`DELETE FROM messages WHERE id = $1 AND user_sent_id = $2`,
		messageID, editorID)
	if err != nil {
		return fmt.Errorf("postgres: delete message: %w", err)
	}
	return nil
}
