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

// NewMessage is the input to MessageStore.Append.
type NewMessage struct {
	ConversationID string
	Sender         domain.Participant
	Receiver       domain.Participant
	Content        string
	Attachments    []domain.AttachmentInput
	CreatedAt      time.Time
}

// MessageStore persists messages, their attachments and the sender's own
// read receipt.
type MessageStore struct {
	db *DB
}

// NewMessageStore creates a message store using the given database.
func NewMessageStore(db *DB) *MessageStore {
	return &MessageStore{db: db}
}

// Append stores a message with its attachments in a single transaction. The
// sender is recorded as having read its own message.
func (s *MessageStore) Append(ctx context.Context, in NewMessage) (*domain.Message, error) {
	created := in.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	// Stored precision is microseconds; keep the returned value identical to
	// what a later read yields.
	created = created.UTC().Truncate(time.Microsecond)

	msg := &domain.Message{
		ID:             uuid.New().String(),
		ConversationID: in.ConversationID,
		Sender:         in.Sender,
		Receiver:       in.Receiver,
		Content:        in.Content,
		Attachments:    make([]domain.Attachment, 0, len(in.Attachments)),
		ReadBy:         []domain.ReadReceipt{{Reader: in.Sender, ReadAt: created}},
		CreatedAt:      created,
	}

	err := s.db.runTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, conversation_id, sender_type, sender_id, receiver_type, receiver_id, content, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.ConversationID,
			msg.Sender.Type, msg.Sender.ID,
			msg.Receiver.Type, msg.Receiver.ID,
			msg.Content, formatTime(created),
		)
		if isForeignKeyViolation(err) {
			return errs.NewNotFoundError("conversation not found")
		}
		if err != nil {
			return fmt.Errorf("sql insert message: %w", err)
		}
		if msg.Seq, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("sql message seq: %w", err)
		}

		for i, a := range in.Attachments {
			var data any
			if a.Data != nil {
				data = a.Data
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO message_attachments (message_id, position, filename, mime_type, size, upload_date, data)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				msg.ID, i, a.Filename, a.MimeType, a.Size, formatTime(created), data,
			); err != nil {
				return fmt.Errorf("sql insert attachment %d: %w", i, err)
			}
			msg.Attachments = append(msg.Attachments, domain.Attachment{
				Filename:   a.Filename,
				MimeType:   a.MimeType,
				Size:       a.Size,
				UploadDate: created,
				HasData:    a.Data != nil,
			})
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO read_receipts (message_id, conversation_id, reader_type, reader_id, read_at)
			 VALUES (?, ?, ?, ?, ?)`,
			msg.ID, msg.ConversationID, msg.Sender.Type, msg.Sender.ID, formatTime(created),
		); err != nil {
			return fmt.Errorf("sql insert sender receipt: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

const messageColumns = `seq, id, conversation_id, sender_type, sender_id, receiver_type, receiver_id, content, created_at`

// List returns a conversation's messages oldest first. Attachment bytes are
// never loaded.
func (s *MessageStore) List(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE conversation_id = ?
		 ORDER BY created_at, seq`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("sql select messages: %w", err)
	}

	var msgs []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sql iterate messages: %w", err)
	}
	rows.Close()

	if len(msgs) == 0 {
		return msgs, nil
	}

	attachments, err := s.loadAttachments(ctx,
		`JOIN messages m ON m.id = a.message_id WHERE m.conversation_id = ?`, conversationID)
	if err != nil {
		return nil, err
	}
	receipts, err := s.loadReceipts(ctx, `conversation_id = ?`, conversationID)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		msgs[i].Attachments = attachments[msgs[i].ID]
		msgs[i].ReadBy = receipts[msgs[i].ID]
	}
	return msgs, nil
}

// Get returns a single message by id.
func (s *MessageStore) Get(ctx context.Context, id string) (*domain.Message, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, m)
}

// Last returns the most recent message of a conversation, or nil when the
// conversation has none.
func (s *MessageStore) Last(ctx context.Context, conversationID string) (*domain.Message, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE conversation_id = ?
		 ORDER BY created_at DESC, seq DESC
		 LIMIT 1`, conversationID)
	m, err := scanMessage(row)
	if errs.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, m)
}

// Count returns the total number of stored messages.
func (s *MessageStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sql count messages: %w", err)
	}
	return n, nil
}

func (s *MessageStore) hydrate(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	attachments, err := s.loadAttachments(ctx, `WHERE a.message_id = ?`, m.ID)
	if err != nil {
		return nil, err
	}
	receipts, err := s.loadReceipts(ctx, `message_id = ?`, m.ID)
	if err != nil {
		return nil, err
	}
	m.Attachments = attachments[m.ID]
	m.ReadBy = receipts[m.ID]
	return m, nil
}

func (s *MessageStore) loadAttachments(ctx context.Context, filter string, arg any) (map[string][]domain.Attachment, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT a.message_id, a.filename, a.mime_type, a.size, a.upload_date, a.data IS NOT NULL
		 FROM message_attachments a `+filter+`
		 ORDER BY a.message_id, a.position`, arg)
	if err != nil {
		return nil, fmt.Errorf("sql select attachments: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.Attachment)
	for rows.Next() {
		var (
			messageID, uploaded string
			a                   domain.Attachment
		)
		if err := rows.Scan(&messageID, &a.Filename, &a.MimeType, &a.Size, &uploaded, &a.HasData); err != nil {
			return nil, fmt.Errorf("sql scan attachment: %w", err)
		}
		a.UploadDate = parseTime(uploaded)
		out[messageID] = append(out[messageID], a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sql iterate attachments: %w", err)
	}
	return out, nil
}

func (s *MessageStore) loadReceipts(ctx context.Context, filter string, arg any) (map[string][]domain.ReadReceipt, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT message_id, reader_type, reader_id, read_at
		 FROM read_receipts WHERE `+filter+`
		 ORDER BY read_at, reader_type, reader_id`, arg)
	if err != nil {
		return nil, fmt.Errorf("sql select receipts: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.ReadReceipt)
	for rows.Next() {
		var messageID, readerType, readAt string
		var r domain.ReadReceipt
		if err := rows.Scan(&messageID, &readerType, &r.Reader.ID, &readAt); err != nil {
			return nil, fmt.Errorf("sql scan receipt: %w", err)
		}
		r.Reader.Type = domain.ParticipantType(readerType)
		r.ReadAt = parseTime(readAt)
		out[messageID] = append(out[messageID], r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sql iterate receipts: %w", err)
	}
	return out, nil
}

func scanMessage(r rowScanner) (*domain.Message, error) {
	var (
		m                        domain.Message
		senderType, receiverType string
		createdAt                string
	)
	err := r.Scan(
		&m.Seq, &m.ID, &m.ConversationID,
		&senderType, &m.Sender.ID,
		&receiverType, &m.Receiver.ID,
		&m.Content, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewNotFoundError("message not found")
	}
	if err != nil {
		return nil, fmt.Errorf("sql scan message: %w", err)
	}
	m.Sender.Type = domain.ParticipantType(senderType)
	m.Receiver.Type = domain.ParticipantType(receiverType)
	m.CreatedAt = parseTime(createdAt)
	return &m, nil
}
