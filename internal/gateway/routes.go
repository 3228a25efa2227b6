package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sunilpie-kumar/kustom-backend/internal/chat"
	"github.com/sunilpie-kumar/kustom-backend/internal/domain"
	"github.com/sunilpie-kumar/kustom-backend/internal/errs"
)

// multipartOverhead is allowed on top of the attachment limit for form
// fields and part headers.
const multipartOverhead = 64 << 10

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.Handle("POST /api/chat/conversations/ensure", s.authed(s.handleEnsureConversation))
	mux.Handle("GET /api/chat/conversations", s.authed(s.handleListConversations))
	mux.Handle("GET /api/chat/messages/{conversationId}", s.authed(s.handleListMessages))
	mux.Handle("POST /api/chat/messages", s.authed(s.handleSendMessage))
	mux.Handle("POST /api/chat/messages/read/{conversationId}", s.authed(s.handleMarkRead))
	mux.Handle("GET /api/chat/messages/{messageId}/attachments/{index}", s.authed(s.handleStreamAttachment))

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

type authedHandler func(w http.ResponseWriter, r *http.Request, caller domain.Participant)

// authed rate-limits the route and resolves the bearer token before
// calling h.
func (s *Server) authed(h authedHandler) http.Handler {
	return s.limiter.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := s.auth.Authenticate(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		h(w, r, caller)
	}))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.NewTooLargeError("body", "request body too large")
		}
		if errors.Is(err, io.EOF) {
			return errs.NewInvalidArgumentError("body", "request body is required")
		}
		return errs.NewInvalidArgumentError("body", "invalid JSON body")
	}
	return nil
}

type ensureRequest struct {
	PeerType string `json:"peerType"`
	PeerID   string `json:"peerId"`
}

func (s *Server) handleEnsureConversation(w http.ResponseWriter, r *http.Request, caller domain.Participant) {
	var req ensureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.PeerType == "" || req.PeerID == "" {
		s.writeError(w, r, errs.NewInvalidArgumentError("peer", "peerType and peerId are required"))
		return
	}
	peer, err := domain.NewParticipant(req.PeerType, req.PeerID)
	if err != nil {
		s.writeError(w, r, errs.NewInvalidArgumentError("peer", err.Error()))
		return
	}

	conv, err := s.chat.EnsureConversation(r.Context(), caller, peer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, true, "Conversation ready", map[string]any{"conversation": conv})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request, caller domain.Participant) {
	list, err := s.chat.ListConversations(r.Context(), caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, true, "Conversations fetched", map[string]any{"conversations": list})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request, caller domain.Participant) {
	msgs, err := s.chat.ListMessages(r.Context(), caller, r.PathValue("conversationId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, true, "Messages fetched", map[string]any{"messages": msgs})
}

// legacyAttachment is attachment metadata sent without bytes. Older clients
// send the media type as "type", which may also hold a kind like "image".
type legacyAttachment struct {
	Name     string `json:"name"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	Type     string `json:"type"`
}

func (a legacyAttachment) input() domain.AttachmentInput {
	name := a.Name
	if name == "" {
		name = a.Filename
	}
	mimeType := a.MimeType
	if mimeType == "" && strings.Contains(a.Type, "/") {
		mimeType = a.Type
	}
	return domain.AttachmentInput{Filename: name, MimeType: mimeType, Size: a.Size}
}

type sendRequest struct {
	ConversationID string             `json:"conversationId"`
	Content        string             `json:"content"`
	Attachments    []legacyAttachment `json:"attachments"`
	ReceiverType   string             `json:"receiverType"`
	ReceiverID     string             `json:"receiverId"`
}

func (req sendRequest) input() (chat.SendInput, error) {
	in := chat.SendInput{
		ConversationID: req.ConversationID,
		Content:        req.Content,
	}
	for _, a := range req.Attachments {
		in.Attachments = append(in.Attachments, a.input())
	}
	if req.ReceiverType != "" || req.ReceiverID != "" {
		p, err := domain.NewParticipant(req.ReceiverType, req.ReceiverID)
		if err != nil {
			return in, errs.NewInvalidArgumentError("receiver", err.Error())
		}
		in.Receiver = &p
	}
	return in, nil
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, caller domain.Participant) {
	var (
		in  chat.SendInput
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		in, err = s.readMultipartSend(w, r)
	} else {
		var req sendRequest
		if err = decodeJSON(w, r, &req); err == nil {
			in, err = req.input()
		}
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	msg, err := s.chat.SendMessage(r.Context(), caller, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusCreated, true, "Message sent", map[string]any{"message": msg})
}

// readMultipartSend reads a send request whose optional "file" part is
// validated and stored with the message.
func (s *Server) readMultipartSend(w http.ResponseWriter, r *http.Request) (chat.SendInput, error) {
	limit := s.validator.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(limit + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return chat.SendInput{}, errs.NewTooLargeError("file",
				fmt.Sprintf("file exceeds the %d byte limit", limit))
		}
		return chat.SendInput{}, errs.NewInvalidArgumentError("body", "invalid multipart body")
	}
	defer r.MultipartForm.RemoveAll()

	req := sendRequest{
		ConversationID: r.FormValue("conversationId"),
		Content:        r.FormValue("content"),
		ReceiverType:   r.FormValue("receiverType"),
		ReceiverID:     r.FormValue("receiverId"),
	}
	in, err := req.input()
	if err != nil {
		return in, err
	}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil
	}
	if err != nil {
		return in, errs.NewInvalidArgumentError("file", "could not read uploaded file")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return in, errs.NewInvalidArgumentError("file", "could not read uploaded file")
	}
	att, err := s.validator.Validate(header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		return in, err
	}
	in.Attachments = append(in.Attachments, att)
	return in, nil
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request, caller domain.Participant) {
	id := r.PathValue("conversationId")
	n, err := s.chat.MarkRead(r.Context(), caller, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, true, "Marked as read", map[string]any{
		"conversationId": id,
		"updated":        n,
	})
}

func (s *Server) handleStreamAttachment(w http.ResponseWriter, r *http.Request, caller domain.Participant) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.writeError(w, r, errs.NewInvalidArgumentError("index", "attachment index must be a number"))
		return
	}

	stream, err := s.chat.StreamAttachment(r.Context(), caller, r.PathValue("messageId"), index)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer stream.Body.Close()

	h := w.Header()
	h.Set("Content-Type", stream.MimeType)
	h.Set("Content-Length", strconv.FormatInt(stream.Size, 10))
	h.Set("Content-Disposition", contentDisposition(stream.Filename))
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "private, max-age=0")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, stream.Body); err != nil {
		s.log.Debug().Err(err).Str("path", r.URL.Path).Msg("attachment stream interrupted")
	}
}

// contentDisposition renders an inline disposition with an RFC 5987
// encoded filename.
func contentDisposition(name string) string {
	return "inline; filename*=UTF-8''" + strings.ReplaceAll(url.QueryEscape(name), "+", "%20")
}
