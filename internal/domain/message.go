package domain

import (
	"fmt"
	"strings"
	"time"
)

// Message is a single entry in a conversation. Messages are immutable once
// stored except for the accretion of read receipts.
type Message struct {
	ID             string
	Seq            int64
	ConversationID string
	Sender         Participant
	Receiver       Participant
	Content        string
	Attachments    []Attachment
	ReadBy         []ReadReceipt
	CreatedAt      time.Time
}

// ReadBySet reports whether p has a read receipt on the message.
func (m *Message) ReadBySet(p Participant) bool {
	for _, r := range m.ReadBy {
		if r.Reader.Equal(p) {
			return true
		}
	}
	return false
}

// Attachment is the metadata of a file carried by a message. Bytes are never
// held here; they are read through the attachment streamer.
type Attachment struct {
	Filename   string
	MimeType   string
	Size       int64
	UploadDate time.Time
	HasData    bool
}

// AttachmentInput is an attachment supplied on send. Data is nil for legacy
// metadata-only attachments, which are stored but cannot be streamed.
type AttachmentInput struct {
	Filename string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	Data     []byte `json:"-"`
}

// ReadReceipt records that a participant has read a message.
type ReadReceipt struct {
	Reader Participant
	ReadAt time.Time
}

// MessageView is the public projection of a message. It never carries
// attachment bytes.
type MessageView struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversationId"`
	SenderType     ParticipantType  `json:"senderType"`
	SenderID       string           `json:"senderId"`
	ReceiverType   ParticipantType  `json:"receiverType"`
	ReceiverID     string           `json:"receiverId"`
	Content        string           `json:"content"`
	Attachments    []AttachmentView `json:"attachments"`
	ReadBy         []ReadByView     `json:"readBy"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// AttachmentView is the public projection of an attachment.
type AttachmentView struct {
	Filename    string    `json:"filename"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	MimeType    string    `json:"mimeType"`
	Type        string    `json:"type"`
	UploadDate  time.Time `json:"uploadDate"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
}

// ReadByView is the public projection of a read receipt.
type ReadByView struct {
	ReaderType ParticipantType `json:"readerType"`
	ReaderID   string          `json:"readerId"`
	ReadAt     time.Time       `json:"readAt"`
}

// AttachmentURL is the stable download reference for an attachment.
func AttachmentURL(messageID string, index int) string {
	return fmt.Sprintf("/api/chat/messages/%s/attachments/%d", messageID, index)
}

// AttachmentKind classifies a mime type for clients: "image" or "file".
func AttachmentKind(mimeType string) string {
	if strings.HasPrefix(mimeType, "image/") {
		return "image"
	}
	return "file"
}

// View projects the message for clients.
func (m *Message) View() MessageView {
	v := MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderType:     m.Sender.Type,
		SenderID:       m.Sender.ID,
		ReceiverType:   m.Receiver.Type,
		ReceiverID:     m.Receiver.ID,
		Content:        m.Content,
		Attachments:    make([]AttachmentView, 0, len(m.Attachments)),
		ReadBy:         make([]ReadByView, 0, len(m.ReadBy)),
		CreatedAt:      m.CreatedAt,
	}
	for i, a := range m.Attachments {
		av := AttachmentView{
			Filename:   a.Filename,
			Name:       a.Filename,
			Size:       a.Size,
			MimeType:   a.MimeType,
			Type:       AttachmentKind(a.MimeType),
			UploadDate: a.UploadDate,
		}
		if a.HasData {
			av.DownloadURL = AttachmentURL(m.ID, i)
		}
		v.Attachments = append(v.Attachments, av)
	}
	for _, r := range m.ReadBy {
		v.ReadBy = append(v.ReadBy, ReadByView{
			ReaderType: r.Reader.Type,
			ReaderID:   r.Reader.ID,
			ReadAt:     r.ReadAt,
		})
	}
	return v
}
