package domain

import "time"

// Conversation is a durable two-party thread. Only LastMessageAt and
// UpdatedAt change after creation.
type Conversation struct {
	ID            string         `json:"id"`
	Participants  [2]Participant `json:"participants"`
	Key           string         `json:"key"`
	LastMessageAt *time.Time     `json:"lastMessageAt"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Has reports whether p is one of the conversation's participants.
func (c *Conversation) Has(p Participant) bool {
	return c.Participants[0].Equal(p) || c.Participants[1].Equal(p)
}

// Peer returns the participant on the other side from p. The second return
// value is false when p is not a participant.
func (c *Conversation) Peer(p Participant) (Participant, bool) {
	switch {
	case c.Participants[0].Equal(p):
		return c.Participants[1], true
	case c.Participants[1].Equal(p):
		return c.Participants[0], true
	}
	return Participant{}, false
}

// Channel is the realtime channel name for the conversation.
func (c *Conversation) Channel() string { return ConversationChannel(c.ID) }

// ConversationChannel names the realtime channel for a conversation id.
func ConversationChannel(id string) string { return "conversation:" + id }

// ConversationSummary is one row of a participant's conversation list.
type ConversationSummary struct {
	Conversation
	LastMessage *MessageView `json:"lastMessage"`
	UnreadCount int          `json:"unreadCount"`
	Title       string       `json:"title"`
}

// Profile is the display information kept for a user or provider. Only the
// fields used to title conversations are stored.
type Profile struct {
	Participant
	FullName    string    `json:"fullName,omitempty"`
	Email       string    `json:"email,omitempty"`
	CompanyName string    `json:"companyName,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Title picks the display name for a profile: users fall back from full name
// to email, providers from company name to full name, and both end at a
// generic label.
func (p *Profile) Title() string {
	switch p.Type {
	case ParticipantProvider:
		if p.CompanyName != "" {
			return p.CompanyName
		}
		if p.FullName != "" {
			return p.FullName
		}
	default:
		if p.FullName != "" {
			return p.FullName
		}
		if p.Email != "" {
			return p.Email
		}
	}
	return FallbackTitle(p.Type)
}

// FallbackTitle is the title used when a peer's profile cannot be resolved.
func FallbackTitle(t ParticipantType) string {
	if t == ParticipantProvider {
		return "Provider"
	}
	return "User"
}
