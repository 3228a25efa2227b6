package chat

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/sunilpie-kumar/kustom-backend/internal/domain"
	"github.com/sunilpie-kumar/kustom-backend/internal/errs"
	"github.com/sunilpie-kumar/kustom-backend/internal/hooks"
	"github.com/sunilpie-kumar/kustom-backend/internal/store"
)

// SendInput is a message to append to a conversation.
type SendInput struct {
	ConversationID string
	Content        string
	Attachments    []domain.AttachmentInput
	// Receiver is optional. When set it must be the caller's peer in the
	// conversation.
	Receiver *domain.Participant
}

// ListMessages returns the conversation's messages oldest first.
func (s *Service) ListMessages(ctx context.Context, caller domain.Participant, conversationID string) ([]domain.MessageView, error) {
	if _, err := s.Conversation(ctx, caller, conversationID); err != nil {
		return nil, err
	}

	msgs, err := s.messages.List(ctx, conversationID)
	if err != nil {
		return nil, backendErr(err, "could not list messages")
	}

	out := make([]domain.MessageView, 0, len(msgs))
	for i := range msgs {
		out = append(out, msgs[i].View())
	}
	return out, nil
}

// SendMessage appends a message from caller and pushes it to the
// conversation channel and the receiver's personal channel.
func (s *Service) SendMessage(ctx context.Context, caller domain.Participant, in SendInput) (*domain.MessageView, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	content := strings.TrimSpace(in.Content)
	if content == "" && len(in.Attachments) == 0 {
		return nil, errs.NewInvalidArgumentError("content", "message content or an attachment is required")
	}
	if utf8.RuneCountInString(content) > s.maxContentRunes {
		return nil, errs.NewInvalidArgumentError("content",
			fmt.Sprintf("message content exceeds %d characters", s.maxContentRunes))
	}
	if err := s.validateAttachments(in.Attachments); err != nil {
		return nil, err
	}

	conv, err := s.Conversation(ctx, caller, in.ConversationID)
	if err != nil {
		return nil, err
	}
	peer, _ := conv.Peer(caller)
	if in.Receiver != nil && !in.Receiver.Equal(peer) {
		return nil, errs.NewInvalidArgumentError("receiver", "receiver must be the other participant of the conversation")
	}

	msg, err := s.messages.Append(ctx, store.NewMessage{
		ConversationID: conv.ID,
		Sender:         caller,
		Receiver:       peer,
		Content:        content,
		Attachments:    in.Attachments,
		CreatedAt:      s.now(),
	})
	if err != nil {
		return nil, backendErr(err, "could not store message")
	}

	if err := s.conversations.Touch(ctx, conv.ID, msg.CreatedAt); err != nil {
		s.log.Warn().Err(err).Str("conversation", conv.ID).Msg("failed to bump conversation activity")
	}

	s.metrics.MessageSent(len(msg.Attachments))
	s.log.Debug().
		Str("conversation", conv.ID).
		Str("message", msg.ID).
		Str("sender", caller.String()).
		Int("attachments", len(msg.Attachments)).
		Msg("message stored")

	if s.notifier != nil {
		if err := s.notifier.MessageSent(ctx, msg); err != nil {
			s.log.Warn().Err(err).Str("message", msg.ID).Msg("realtime push failed")
		}
	}
	s.emit(ctx, hooks.EventMessageSent, map[string]any{
		"conversationId": conv.ID,
		"messageId":      msg.ID,
		"sender":         caller.String(),
		"receiver":       peer.String(),
		"attachments":    len(msg.Attachments),
	})

	v := msg.View()
	return &v, nil
}

func (s *Service) validateAttachments(in []domain.AttachmentInput) error {
	if len(in) > s.maxAttachments {
		return errs.NewInvalidArgumentError("attachments",
			fmt.Sprintf("at most %d attachments are allowed", s.maxAttachments))
	}
	for i, a := range in {
		if strings.TrimSpace(a.Filename) == "" {
			return errs.NewInvalidArgumentError("attachments", fmt.Sprintf("attachment %d has no name", i))
		}
		if a.Size < 0 {
			return errs.NewInvalidArgumentError("attachments", fmt.Sprintf("attachment %d has a negative size", i))
		}
	}
	return nil
}

// MarkRead records that caller has read every message in the conversation
// and returns the number of newly read messages. Repeated calls are no-ops.
func (s *Service) MarkRead(ctx context.Context, caller domain.Participant, conversationID string) (int64, error) {
	if _, err := s.Conversation(ctx, caller, conversationID); err != nil {
		return 0, err
	}

	added, err := s.receipts.MarkRead(ctx, conversationID, caller, s.now())
	if err != nil {
		return 0, backendErr(err, "could not mark messages read")
	}
	s.metrics.ReceiptsAdded(added)

	if s.notifier != nil {
		if err := s.notifier.MessagesRead(ctx, conversationID, caller); err != nil {
			s.log.Warn().Err(err).Str("conversation", conversationID).Msg("realtime push failed")
		}
	}
	if added > 0 {
		s.emit(ctx, hooks.EventMessagesRead, map[string]any{
			"conversationId": conversationID,
			"reader":         caller.String(),
			"count":          added,
		})
	}
	return added, nil
}

// AttachmentStream is an open attachment payload. The caller must close
// Body.
type AttachmentStream struct {
	Filename string
	MimeType string
	Size     int64
	Body     io.ReadCloser
}

// StreamAttachment opens the bytes of the attachment at index of a message.
// Missing messages, indexes and payloads are NotFound; callers outside the
// conversation are Forbidden.
func (s *Service) StreamAttachment(ctx context.Context, caller domain.Participant, messageID string, index int) (*AttachmentStream, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return nil, backendErr(err, "could not load message")
	}
	if index < 0 || index >= len(msg.Attachments) {
		return nil, errs.NewNotFoundError("attachment not found")
	}
	att := msg.Attachments[index]
	if !att.HasData {
		return nil, errs.NewNotFoundError("attachment not found")
	}

	conv, err := s.conversations.Get(ctx, msg.ConversationID)
	if err != nil && !errs.IsNotFound(err) {
		return nil, backendErr(err, "could not load conversation")
	}
	if conv == nil || !conv.Has(caller) {
		return nil, errs.NewForbiddenError("not a participant of this conversation")
	}

	body, size, err := s.attachments.Open(ctx, messageID, index)
	if err != nil {
		return nil, backendErr(err, "could not open attachment")
	}

	mime := att.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	name := att.Filename
	if name == "" {
		name = "file"
	}
	return &AttachmentStream{Filename: name, MimeType: mime, Size: size, Body: body}, nil
}
