package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/sunilpie-kumar/kustom-backend/internal/errs"
)

// chunkSize is the number of bytes fetched from a BLOB per read.
const chunkSize = 64 << 10

// AttachmentReader streams stored attachment bytes.
type AttachmentReader struct {
	db *DB
}

// NewAttachmentReader creates an attachment reader using the given database.
func NewAttachmentReader(db *DB) *AttachmentReader {
	return &AttachmentReader{db: db}
}

// Open returns a reader over the bytes of the attachment at position index
// of the message, along with the stored length. Metadata-only attachments
// have no bytes and yield NotFound.
func (r *AttachmentReader) Open(ctx context.Context, messageID string, index int) (io.ReadCloser, int64, error) {
	var length sql.NullInt64
	err := r.db.sql.QueryRowContext(ctx,
		`SELECT length(data) FROM message_attachments WHERE message_id = ? AND position = ?`,
		messageID, index,
	).Scan(&length)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, errs.NewNotFoundError("attachment not found")
	}
	if err != nil {
		return nil, 0, fmt.Errorf("sql attachment length: %w", err)
	}
	if !length.Valid {
		return nil, 0, errs.NewNotFoundError("attachment has no stored data")
	}

	return &blobReader{
		ctx:       ctx,
		db:        r.db,
		messageID: messageID,
		position:  index,
		offset:    1,
		remaining: length.Int64,
	}, length.Int64, nil
}

// blobReader pages through a BLOB with substr so the payload is never held
// in memory at once.
type blobReader struct {
	ctx       context.Context
	db        *DB
	messageID string
	position  int
	offset    int64 // 1-based, as substr expects
	remaining int64
	closed    bool
}

func (b *blobReader) Read(p []byte) (int, error) {
	if b.closed {
		return 0, io.ErrClosedPipe
	}
	if b.remaining <= 0 {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	n := int64(len(p))
	if n > chunkSize {
		n = chunkSize
	}
	if n > b.remaining {
		n = b.remaining
	}

	var chunk []byte
	err := b.db.sql.QueryRowContext(b.ctx,
		`SELECT substr(data, ?, ?) FROM message_attachments WHERE message_id = ? AND position = ?`,
		b.offset, n, b.messageID, b.position,
	).Scan(&chunk)
	if err != nil {
		return 0, fmt.Errorf("sql read attachment chunk: %w", err)
	}
	if len(chunk) == 0 {
		b.remaining = 0
		return 0, io.EOF
	}

	copied := copy(p, chunk)
	b.offset += int64(copied)
	b.remaining -= int64(copied)
	return copied, nil
}

func (b *blobReader) Close() error {
	b.closed = true
	return nil
}
