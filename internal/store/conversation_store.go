package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sunilpie-kumar/kustom-backend/internal/domain"
	"github.com/sunilpie-kumar/kustom-backend/internal/errs"
)

// ConversationStore persists two-party conversations keyed by their
// canonical participant key.
type ConversationStore struct {
	db *DB
}

// NewConversationStore creates a conversation store using the given database.
func NewConversationStore(db *DB) *ConversationStore {
	return &ConversationStore{db: db}
}

const conversationColumns = `id, key_str, a_type, a_id, b_type, b_id, last_message_at, created_at, updated_at`

// Ensure returns the conversation between a and b, creating it when absent.
// The boolean result is true when this call created the row. A concurrent
// creator losing the unique-key race re-reads and returns the winner's row.
func (s *ConversationStore) Ensure(ctx context.Context, a, b domain.Participant) (*domain.Conversation, bool, error) {
	key := domain.ConversationKey(a, b)

	conv, err := s.ByKey(ctx, key)
	if err == nil {
		return conv, false, nil
	}
	if !errs.IsNotFound(err) {
		return nil, false, err
	}

	now := time.Now().UTC()
	conv = &domain.Conversation{
		ID:           uuid.New().String(),
		Participants: domain.OrderedPair(a, b),
		Key:          key,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.insert(ctx, conv)
	if errs.IsConflict(err) {
		s.db.log.Debug().Str("key", key).Msg("conversation created concurrently, re-reading")
		existing, err := s.ByKey(ctx, key)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

func (s *ConversationStore) insert(ctx context.Context, c *domain.Conversation) error {
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO conversations (id, key_str, a_type, a_id, b_type, b_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Key,
		c.Participants[0].Type, c.Participants[0].ID,
		c.Participants[1].Type, c.Participants[1].ID,
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return errs.NewConflictError("key", "conversation already exists")
	}
	if err != nil {
		return fmt.Errorf("sql insert conversation: %w", err)
	}
	return nil
}

// ByKey looks a conversation up by its canonical key.
func (s *ConversationStore) ByKey(ctx context.Context, key string) (*domain.Conversation, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE key_str = ?`, key)
	return scanConversation(row)
}

// Get returns a conversation by id.
func (s *ConversationStore) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

// ListFor returns every conversation p participates in, most recently
// updated first.
func (s *ConversationStore) ListFor(ctx context.Context, p domain.Participant) ([]domain.Conversation, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE (a_type = ? AND a_id = ?) OR (b_type = ? AND b_id = ?)
		 ORDER BY updated_at DESC, created_at DESC, id`,
		p.Type, p.ID, p.Type, p.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("sql select conversations: %w", err)
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sql iterate conversations: %w", err)
	}
	return out, nil
}

// Touch records that a message was appended at the given time.
func (s *ConversationStore) Touch(ctx context.Context, id string, at time.Time) error {
	ts := formatTime(at)
	res, err := s.db.sql.ExecContext(ctx,
		`UPDATE conversations
		    SET last_message_at = MAX(COALESCE(last_message_at, ''), ?),
		        updated_at = MAX(updated_at, ?)
		  WHERE id = ?`,
		ts, ts, id,
	)
	if err != nil {
		return fmt.Errorf("sql touch conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NewNotFoundError("conversation not found")
	}
	return nil
}

// Count returns the total number of conversations.
func (s *ConversationStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sql count conversations: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(r rowScanner) (*domain.Conversation, error) {
	var (
		c                    domain.Conversation
		aType, bType         string
		lastMessageAt        sql.NullString
		createdAt, updatedAt string
	)
	err := r.Scan(
		&c.ID, &c.Key,
		&aType, &c.Participants[0].ID,
		&bType, &c.Participants[1].ID,
		&lastMessageAt, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewNotFoundError("conversation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("sql scan conversation: %w", err)
	}

	c.Participants[0].Type = domain.ParticipantType(aType)
	c.Participants[1].Type = domain.ParticipantType(bType)
	if lastMessageAt.Valid {
		t := parseTime(lastMessageAt.String)
		c.LastMessageAt = &t
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}
