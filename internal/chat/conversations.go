package chat

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/sunilpie-kumar/kustom-backend/internal/domain"
	"github.com/sunilpie-kumar/kustom-backend/internal/errs"
	"github.com/sunilpie-kumar/kustom-backend/internal/hooks"
)

// EnsureConversation returns the caller's conversation with peer, creating
// it on first contact. Calls with the pair in either order yield the same
// conversation.
func (s *Service) EnsureConversation(ctx context.Context, caller, peer domain.Participant) (*domain.Conversation, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if err := peer.Validate(); err != nil {
		return nil, errs.NewInvalidArgumentError("peer", err.Error())
	}
	if caller.Equal(peer) {
		return nil, errs.NewInvalidArgumentError("peer", "cannot start a conversation with yourself")
	}

	conv, created, err := s.conversations.Ensure(ctx, caller, peer)
	if err != nil {
		return nil, backendErr(err, "could not ensure conversation")
	}

	if created {
		s.metrics.ConversationCreated()
		s.log.Info().
			Str("conversation", conv.ID).
			Str("key", conv.Key).
			Msg("conversation created")
		s.emit(ctx, hooks.EventConversationCreated, map[string]any{
			"conversationId": conv.ID,
			"key":            conv.Key,
			"createdBy":      caller.String(),
		})
	}
	return conv, nil
}

// Conversation returns a conversation the caller takes part in. Unknown
// conversations and conversations of other participants are both reported
// as NotFound.
func (s *Service) Conversation(ctx context.Context, caller domain.Participant, id string) (*domain.Conversation, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, errs.NewInvalidArgumentError("conversationId", "conversation id is required")
	}

	conv, err := s.conversations.Get(ctx, id)
	if err != nil {
		return nil, backendErr(err, "could not load conversation")
	}
	if !conv.Has(caller) {
		return nil, errs.NewNotFoundError("conversation not found")
	}
	return conv, nil
}

// ListConversations returns the caller's conversations, most recently
// updated first, each with its last message, the caller's unread count and
// a title naming the peer.
func (s *Service) ListConversations(ctx context.Context, caller domain.Participant) ([]domain.ConversationSummary, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	convs, err := s.conversations.ListFor(ctx, caller)
	if err != nil {
		return nil, backendErr(err, "could not list conversations")
	}

	out := make([]domain.ConversationSummary, len(convs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.listConcurrency)

	for i := range convs {
		g.Go(func() error {
			summary, err := s.summarize(gctx, caller, convs[i])
			if err != nil {
				return err
			}
			out[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, backendErr(err, "could not list conversations")
	}
	return out, nil
}

func (s *Service) summarize(ctx context.Context, caller domain.Participant, conv domain.Conversation) (domain.ConversationSummary, error) {
	summary := domain.ConversationSummary{Conversation: conv}

	last, err := s.messages.Last(ctx, conv.ID)
	if err != nil {
		return summary, err
	}
	if last != nil {
		v := last.View()
		summary.LastMessage = &v
	}

	if summary.UnreadCount, err = s.receipts.UnreadCount(ctx, conv.ID, caller); err != nil {
		return summary, err
	}

	summary.Title = s.title(ctx, conv, caller)
	return summary, nil
}

// title never fails; lookup problems fall back to a generic label.
func (s *Service) title(ctx context.Context, conv domain.Conversation, caller domain.Participant) string {
	peer, ok := conv.Peer(caller)
	if !ok {
		return ""
	}
	if s.profiles == nil {
		return domain.FallbackTitle(peer.Type)
	}
	name, err := s.profiles.DisplayName(ctx, peer)
	if err != nil {
		s.log.Warn().Err(err).
			Str("conversation", conv.ID).
			Str("peer", peer.String()).
			Msg("title lookup failed")
		return domain.FallbackTitle(peer.Type)
	}
	return name
}

// UnreadCount returns how many messages in the conversation the caller has
// not read.
func (s *Service) UnreadCount(ctx context.Context, caller domain.Participant, conversationID string) (int, error) {
	if _, err := s.Conversation(ctx, caller, conversationID); err != nil {
		return 0, err
	}
	n, err := s.receipts.UnreadCount(ctx, conversationID, caller)
	if err != nil {
		return 0, backendErr(err, "could not count unread messages")
	}
	return n, nil
}
