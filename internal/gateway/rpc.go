package gateway

import (
	"time"

	"github.com/sunilpie-kumar/kustom-backend/internal/domain"
	"github.com/sunilpie-kumar/kustom-backend/internal/errs"
)

// registerRPCHandlers registers the websocket methods.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("chat.join", s.rpcJoin)
	s.Handle("chat.leave", s.rpcLeave)
	s.Handle("chat.typing", s.rpcTyping)
	s.Handle("chat.conversations.ensure", s.rpcEnsureConversation)
	s.Handle("chat.conversations.list", s.rpcListConversations)
	s.Handle("chat.messages.list", s.rpcListMessages)
	s.Handle("chat.messages.send", s.rpcSendMessage)
	s.Handle("chat.read", s.rpcMarkRead)
}

type rpcHealthResult struct {
	HealthResponse
	UptimeMs int64 `json:"uptimeMs"`
}

func (s *Server) rpcHealth(ctx *RequestContext) {
	channels, subscribers := s.hub.Stats()
	status := "ok"
	if s.healthCheck != nil {
		if err := s.healthCheck(ctx.Client.Context()); err != nil {
			status = "unavailable"
		}
	}
	var uptime int64
	if !s.startedAt.IsZero() {
		uptime = time.Since(s.startedAt).Milliseconds()
	}
	ctx.Respond(rpcHealthResult{
		HealthResponse: HealthResponse{
			Status:      status,
			Version:     s.version,
			Clients:     s.clients.Count(),
			Channels:    channels,
			Subscribers: subscribers,
		},
		UptimeMs: uptime,
	})
}

type conversationParams struct {
	ConversationID string `json:"conversationId"`
}

// params decodes the request params, answering with an invalid_argument
// error on failure.
func params[T any](ctx *RequestContext) (T, bool) {
	var p T
	if err := ctx.Params(&p); err != nil {
		ctx.Fail(errs.NewInvalidArgumentError("params", "invalid params"))
		return p, false
	}
	return p, true
}

// rpcJoin subscribes the socket to a conversation it belongs to.
func (s *Server) rpcJoin(ctx *RequestContext) {
	caller, err := ctx.Caller()
	if err != nil {
		ctx.Fail(err)
		return
	}
	p, ok := params[conversationParams](ctx)
	if !ok {
		return
	}
	conv, err := s.chat.Conversation(ctx.Client.Context(), caller, p.ConversationID)
	if err != nil {
		ctx.Fail(err)
		return
	}
	s.hub.Join(conv.Channel(), ctx.Client)
	ctx.Respond(map[string]any{"conversationId": conv.ID, "joined": true})
}

func (s *Server) rpcLeave(ctx *RequestContext) {
	p, ok := params[conversationParams](ctx)
	if !ok {
		return
	}
	if p.ConversationID == "" {
		ctx.Fail(errs.NewInvalidArgumentError("conversationId", "conversationId is required"))
		return
	}
	s.hub.Leave(domain.ConversationChannel(p.ConversationID), ctx.Client)
	ctx.Respond(map[string]any{"conversationId": p.ConversationID, "joined": false})
}

type typingParams struct {
	ConversationID string `json:"conversationId"`
	IsTyping       *bool  `json:"isTyping"`
}

// rpcTyping relays a typing indicator to the other sockets in the room.
// Authenticated sockets must belong to the conversation. Anonymous sockets
// may type; their events carry a null sender.
func (s *Server) rpcTyping(ctx *RequestContext) {
	p, ok := params[typingParams](ctx)
	if !ok {
		return
	}
	if p.ConversationID == "" {
		ctx.Fail(errs.NewInvalidArgumentError("conversationId", "conversationId is required"))
		return
	}
	if caller := ctx.Client.Participant; caller != nil {
		if _, err := s.chat.Conversation(ctx.Client.Context(), *caller, p.ConversationID); err != nil {
			ctx.Fail(err)
			return
		}
	}
	isTyping := true
	if p.IsTyping != nil {
		isTyping = *p.IsTyping
	}
	if err := s.fanout.Typing(p.ConversationID, ctx.Client.Participant, isTyping, ctx.Client.ConnID); err != nil {
		s.log.Debug().Err(err).Str("conversationId", p.ConversationID).Msg("typing relay incomplete")
	}
	ctx.Respond(map[string]any{"ok": true})
}

type peerParams struct {
	PeerType string `json:"peerType"`
	PeerID   string `json:"peerId"`
}

func (s *Server) rpcEnsureConversation(ctx *RequestContext) {
	caller, err := ctx.Caller()
	if err != nil {
		ctx.Fail(err)
		return
	}
	p, ok := params[peerParams](ctx)
	if !ok {
		return
	}
	peer, err := domain.NewParticipant(p.PeerType, p.PeerID)
	if err != nil {
		ctx.Fail(errs.NewInvalidArgumentError("peer", err.Error()))
		return
	}
	conv, err := s.chat.EnsureConversation(ctx.Client.Context(), caller, peer)
	if err != nil {
		ctx.Fail(err)
		return
	}
	ctx.Respond(map[string]any{"conversation": conv})
}

func (s *Server) rpcListConversations(ctx *RequestContext) {
	caller, err := ctx.Caller()
	if err != nil {
		ctx.Fail(err)
		return
	}
	list, err := s.chat.ListConversations(ctx.Client.Context(), caller)
	if err != nil {
		ctx.Fail(err)
		return
	}
	ctx.Respond(map[string]any{"conversations": list})
}

func (s *Server) rpcListMessages(ctx *RequestContext) {
	caller, err := ctx.Caller()
	if err != nil {
		ctx.Fail(err)
		return
	}
	p, ok := params[conversationParams](ctx)
	if !ok {
		return
	}
	msgs, err := s.chat.ListMessages(ctx.Client.Context(), caller, p.ConversationID)
	if err != nil {
		ctx.Fail(err)
		return
	}
	ctx.Respond(map[string]any{"messages": msgs})
}

// rpcSendMessage sends a message over the socket. Attachments are
// metadata only; uploads go through the HTTP route.
func (s *Server) rpcSendMessage(ctx *RequestContext) {
	caller, err := ctx.Caller()
	if err != nil {
		ctx.Fail(err)
		return
	}
	req, ok := params[sendRequest](ctx)
	if !ok {
		return
	}
	in, err := req.input()
	if err != nil {
		ctx.Fail(err)
		return
	}
	msg, err := s.chat.SendMessage(ctx.Client.Context(), caller, in)
	if err != nil {
		ctx.Fail(err)
		return
	}
	ctx.Respond(map[string]any{"message": msg})
}

func (s *Server) rpcMarkRead(ctx *RequestContext) {
	caller, err := ctx.Caller()
	if err != nil {
		ctx.Fail(err)
		return
	}
	p, ok := params[conversationParams](ctx)
	if !ok {
		return
	}
	n, err := s.chat.MarkRead(ctx.Client.Context(), caller, p.ConversationID)
	if err != nil {
		ctx.Fail(err)
		return
	}
	ctx.Respond(map[string]any{"conversationId": p.ConversationID, "updated": n})
}
