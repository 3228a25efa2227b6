package realtime

import (
	"context"
	"errors"

	"github.com/sunilpie-kumar/kustom-backend/internal/domain"
)

// Event names pushed to clients.
const (
	EventNewMessage = "chat:new_message"
	EventNotify     = "chat:notify"
	EventRead       = "chat:read"
	EventTyping     = "chat:typing"
)

// MessagePayload is the body of chat:new_message and chat:notify.
type MessagePayload struct {
	ConversationID string             `json:"conversationId"`
	Message        domain.MessageView `json:"message"`
}

// ReadPayload is the body of chat:read.
type ReadPayload struct {
	ConversationID string             `json:"conversationId"`
	Reader         domain.Participant `json:"reader"`
}

// TypingPayload is the body of chat:typing. From is nil for anonymous
// connections.
type TypingPayload struct {
	ConversationID string              `json:"conversationId"`
	From           *domain.Participant `json:"from"`
	IsTyping       bool                `json:"isTyping"`
}

// Fanout maps chat domain events onto hub channels.
type Fanout struct {
	hub *Hub
}

// NewFanout creates a fan-out publisher over hub.
func NewFanout(hub *Hub) *Fanout {
	return &Fanout{hub: hub}
}

// MessageSent pushes the message to the conversation channel and notifies
// the receiver on its personal channel.
func (f *Fanout) MessageSent(_ context.Context, msg *domain.Message) error {
	payload := MessagePayload{ConversationID: msg.ConversationID, Message: msg.View()}

	_, errRoom := f.hub.Publish(domain.ConversationChannel(msg.ConversationID), EventNewMessage, payload)
	_, errPersonal := f.hub.Publish(msg.Receiver.String(), EventNotify, payload)
	return errors.Join(errRoom, errPersonal)
}

// MessagesRead tells the conversation channel that reader caught up.
func (f *Fanout) MessagesRead(_ context.Context, conversationID string, reader domain.Participant) error {
	_, err := f.hub.Publish(domain.ConversationChannel(conversationID), EventRead, ReadPayload{
		ConversationID: conversationID,
		Reader:         reader,
	})
	return err
}

// Typing relays a typing indicator to the other members of the
// conversation channel. senderID names the subscriber that typed; it may be
// empty.
func (f *Fanout) Typing(conversationID string, from *domain.Participant, isTyping bool, senderID string) error {
	_, err := f.hub.PublishExcept(domain.ConversationChannel(conversationID), EventTyping, TypingPayload{
		ConversationID: conversationID,
		From:           from,
		IsTyping:       isTyping,
	}, senderID)
	return err
}
