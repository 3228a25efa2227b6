package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sunilpie-kumar/kustom-backend/internal/domain"
)

// ReceiptStore tracks which participant has read which message.
type ReceiptStore struct {
	db *DB
}

// NewReceiptStore creates a receipt store using the given database.
func NewReceiptStore(db *DB) *ReceiptStore {
	return &ReceiptStore{db: db}
}

// UnreadCount counts messages in the conversation that viewer neither sent
// nor has a receipt for. Only indexes are consulted; message bodies are not
// read.
func (s *ReceiptStore) UnreadCount(ctx context.Context, conversationID string, viewer domain.Participant) (int, error) {
	var n int
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages m
		 WHERE m.conversation_id = ?
		   AND NOT (m.sender_type = ? AND m.sender_id = ?)
		   AND NOT EXISTS (
		     SELECT 1 FROM read_receipts r
		     WHERE r.message_id = m.id AND r.reader_type = ? AND r.reader_id = ?
		   )`,
		conversationID, viewer.Type, viewer.ID, viewer.Type, viewer.ID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sql count unread: %w", err)
	}
	return n, nil
}

// MarkRead adds a receipt for viewer on every message of the conversation
// that lacks one and returns how many were added. Repeating the call adds
// nothing.
func (s *ReceiptStore) MarkRead(ctx context.Context, conversationID string, viewer domain.Participant, at time.Time) (int64, error) {
	res, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO read_receipts (message_id, conversation_id, reader_type, reader_id, read_at)
		 SELECT m.id, m.conversation_id, ?, ?, ?
		 FROM messages m
		 WHERE m.conversation_id = ?
		 ON CONFLICT (message_id, reader_type, reader_id) DO NOTHING`,
		viewer.Type, viewer.ID, formatTime(at), conversationID,
	)
	if err != nil {
		return 0, fmt.Errorf("sql mark read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sql mark read rows: %w", err)
	}
	return n, nil
}
