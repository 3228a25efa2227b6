package domain

import (
	"fmt"
	"strings"
)

// ParticipantType is the closed set of principals that can take part in a
// conversation.
type ParticipantType string

const (
	ParticipantUser     ParticipantType = "user"
	ParticipantProvider ParticipantType = "provider"
)

// Valid reports whether t is one of the known participant types.
func (t ParticipantType) Valid() bool {
	return t == ParticipantUser || t == ParticipantProvider
}

// ParseParticipantType converts a wire string into a ParticipantType.
func ParseParticipantType(s string) (ParticipantType, error) {
	t := ParticipantType(strings.TrimSpace(s))
	if !t.Valid() {
		return "", fmt.Errorf("unknown participant type %q", s)
	}
	return t, nil
}

// maxIDLen bounds participant and resource ids accepted from callers.
const maxIDLen = 64

// Participant identifies one side of a conversation. Two participants are the
// same when both type and id match.
type Participant struct {
	Type ParticipantType `json:"participantType"`
	ID   string          `json:"participantId"`
}

// NewParticipant builds a participant from wire values and validates it.
func NewParticipant(typ, id string) (Participant, error) {
	t, err := ParseParticipantType(typ)
	if err != nil {
		return Participant{}, err
	}
	p := Participant{Type: t, ID: strings.TrimSpace(id)}
	if err := p.Validate(); err != nil {
		return Participant{}, err
	}
	return p, nil
}

// User is shorthand for a user participant.
func User(id string) Participant { return Participant{Type: ParticipantUser, ID: id} }

// Provider is shorthand for a provider participant.
func Provider(id string) Participant { return Participant{Type: ParticipantProvider, ID: id} }

// Validate checks the participant type and that the id is non-empty and of a
// sane length.
func (p Participant) Validate() error {
	if !p.Type.Valid() {
		return fmt.Errorf("unknown participant type %q", p.Type)
	}
	if p.ID == "" {
		return fmt.Errorf("participant id is required")
	}
	if len(p.ID) > 256 {
		return fmt.Errorf("participant id too long")
	}
	return nil
}

// IsZero reports whether p is the zero value.
func (p Participant) IsZero() bool { return p.Type == "" && p.ID == "" }

// Equal reports whether p and o denote the same principal.
func (p Participant) Equal(o Participant) bool {
	return p.Type == o.Type && p.ID == o.ID
}

// String renders the participant as "type:id". This is also the name of the
// participant's personal realtime channel.
func (p Participant) String() string {
	return string(p.Type) + ":" + p.ID
}

// less orders participants by type, then id, byte-wise.
func (p Participant) less(o Participant) bool {
	if p.Type != o.Type {
		return p.Type < o.Type
	}
	return p.ID < o.ID
}

// OrderedPair returns a and b sorted by (type, id).
func OrderedPair(a, b Participant) [2]Participant {
	if b.less(a) {
		return [2]Participant{b, a}
	}
	return [2]Participant{a, b}
}

var keyIDEscaper = strings.NewReplacer("%", "%25", "|", "%7C")

// ConversationKey derives the order-independent key for a pair of
// participants. The pair is sorted by (type, id) and rendered as
// "<type>:<id>|<type>:<id>"; "%" and "|" inside ids are percent-escaped so
// distinct pairs never collide. A user/provider pair therefore always renders
// as "provider:<pid>|user:<uid>".
func ConversationKey(a, b Participant) string {
	pair := OrderedPair(a, b)
	a, b = pair[0], pair[1]
	return string(a.Type) + ":" + keyIDEscaper.Replace(a.ID) +
		"|" + string(b.Type) + ":" + keyIDEscaper.Replace(b.ID)
}

// WellFormedID reports whether s looks like an id this system issued or an
// external profile id it can look up: 1..64 chars of [A-Za-z0-9_-].
func WellFormedID(s string) bool {
	if s == "" || len(s) > maxIDLen {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
