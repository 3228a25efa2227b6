// Package chat implements conversation and messaging operations between
// users and providers.
package chat

import (
	"context"
	"io"
	"time"

	"github.com/sunilpie-kumar/kustom-backend/internal/domain"
	"github.com/sunilpie-kumar/kustom-backend/internal/errs"
	"github.com/sunilpie-kumar/kustom-backend/internal/hooks"
	"github.com/sunilpie-kumar/kustom-backend/internal/logging"
	"github.com/sunilpie-kumar/kustom-backend/internal/metrics"
	"github.com/sunilpie-kumar/kustom-backend/internal/store"
)

// Conversations is the conversation directory backing the service.
type Conversations interface {
	Ensure(ctx context.Context, a, b domain.Participant) (*domain.Conversation, bool, error)
	Get(ctx context.Context, id string) (*domain.Conversation, error)
	ListFor(ctx context.Context, p domain.Participant) ([]domain.Conversation, error)
	Touch(ctx context.Context, id string, at time.Time) error
}

// Messages is the message store backing the service.
type Messages interface {
	Append(ctx context.Context, in store.NewMessage) (*domain.Message, error)
	List(ctx context.Context, conversationID string) ([]domain.Message, error)
	Get(ctx context.Context, id string) (*domain.Message, error)
	Last(ctx context.Context, conversationID string) (*domain.Message, error)
}

// Receipts tracks read state.
type Receipts interface {
	UnreadCount(ctx context.Context, conversationID string, viewer domain.Participant) (int, error)
	MarkRead(ctx context.Context, conversationID string, viewer domain.Participant, at time.Time) (int64, error)
}

// Profiles resolves conversation titles.
type Profiles interface {
	DisplayName(ctx context.Context, p domain.Participant) (string, error)
}

// Attachments opens stored attachment bytes.
type Attachments interface {
	Open(ctx context.Context, messageID string, index int) (io.ReadCloser, int64, error)
}

// Notifier pushes chat events to connected clients. Failures are logged by
// the service and never fail the operation that triggered them.
type Notifier interface {
	MessageSent(ctx context.Context, msg *domain.Message) error
	MessagesRead(ctx context.Context, conversationID string, reader domain.Participant) error
}

// Limits applied when Config leaves them zero.
const (
	DefaultMaxContentRunes = 5000
	DefaultMaxAttachments  = 10
	DefaultListConcurrency = 8
)

// Config wires a Service. Notifier, Hooks and Metrics are optional.
type Config struct {
	Conversations Conversations
	Messages      Messages
	Receipts      Receipts
	Profiles      Profiles
	Attachments   Attachments
	Notifier      Notifier
	Hooks         *hooks.Manager
	Metrics       *metrics.Metrics
	Log           *logging.Logger

	MaxContentRunes int
	MaxAttachments  int
	ListConcurrency int
}

// Service implements the chat operations. All methods take the
// authenticated caller explicitly.
type Service struct {
	conversations Conversations
	messages      Messages
	receipts      Receipts
	profiles      Profiles
	attachments   Attachments
	notifier      Notifier
	hooks         *hooks.Manager
	metrics       *metrics.Metrics
	log           *logging.Logger

	maxContentRunes int
	maxAttachments  int
	listConcurrency int

	now func() time.Time
}

// New creates a Service from cfg.
func New(cfg Config) *Service {
	s := &Service{
		conversations:   cfg.Conversations,
		messages:        cfg.Messages,
		receipts:        cfg.Receipts,
		profiles:        cfg.Profiles,
		attachments:     cfg.Attachments,
		notifier:        cfg.Notifier,
		hooks:           cfg.Hooks,
		metrics:         cfg.Metrics,
		log:             cfg.Log.Sub("chat"),
		maxContentRunes: cfg.MaxContentRunes,
		maxAttachments:  cfg.MaxAttachments,
		listConcurrency: cfg.ListConcurrency,
		now:             time.Now,
	}
	if s.maxContentRunes <= 0 {
		s.maxContentRunes = DefaultMaxContentRunes
	}
	if s.maxAttachments <= 0 {
		s.maxAttachments = DefaultMaxAttachments
	}
	if s.listConcurrency <= 0 {
		s.listConcurrency = DefaultListConcurrency
	}
	return s
}

// NewFromDB wires a Service over the SQLite stores in db.
func NewFromDB(db *store.DB, cfg Config) *Service {
	cfg.Conversations = store.NewConversationStore(db)
	cfg.Messages = store.NewMessageStore(db)
	cfg.Receipts = store.NewReceiptStore(db)
	cfg.Profiles = store.NewProfileStore(db)
	cfg.Attachments = store.NewAttachmentReader(db)
	return New(cfg)
}

func requireCaller(p domain.Participant) error {
	if p.IsZero() || p.Validate() != nil {
		return errs.Unauthenticated
	}
	return nil
}

// backendErr passes classified errors through and marks anything else as a
// backend failure.
func backendErr(err error, message string) error {
	if errs.KindOf(err) != "" {
		return err
	}
	return errs.NewUnavailableError(message, err)
}

func (s *Service) emit(ctx context.Context, event string, data map[string]any) {
	s.hooks.EmitAsync(ctx, event, data)
}
