package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sunilpie-kumar/kustom-backend/internal/domain"
	"github.com/sunilpie-kumar/kustom-backend/internal/errs"
)

// HealthResponse is returned by health endpoints. The public HTTP endpoint
// only populates Status; the RPC handler populates all fields.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version,omitempty"`
	Clients     int    `json:"clients,omitempty"`
	Channels    int    `json:"channels,omitempty"`
	Subscribers int    `json:"subscribers,omitempty"`
}

// handleHealth reports ok while the store answers pings.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if s.healthCheck != nil {
		if err := s.healthCheck(r.Context()); err != nil {
			s.log.Warn().Err(err).Msg("health check failed")
			status, code = "unavailable", http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(HealthResponse{Status: status})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, http.StatusNotFound, false, "Route not found: "+r.URL.Path, nil)
}

// envelope is the REST response body.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeEnvelope(w http.ResponseWriter, status int, ok bool, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: ok, Message: message, Data: data})
}

// writeError renders err with the status its kind maps to. Unclassified
// errors are logged and hidden behind a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	var e *errs.Error
	if errors.As(err, &e) {
		message = e.Message
	}
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		if status == http.StatusInternalServerError {
			message = "Internal server error"
		}
	}
	writeEnvelope(w, status, false, message, nil)
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindInvalidArgument:
		return http.StatusBadRequest
	case errs.KindUnauthenticated:
		return http.StatusUnauthorized
	case errs.KindForbidden:
		return http.StatusForbidden
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case errs.KindUnsupported:
		return http.StatusUnsupportedMediaType
	case errs.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorShapeFor renders err as a websocket error frame body.
func errorShapeFor(err error) ErrorShape {
	var e *errs.Error
	if errors.As(err, &e) {
		shape := ErrorShape{Code: string(e.Kind), Message: e.Message}
		if e.Field != nil {
			shape.Field = *e.Field
		}
		return shape
	}
	return ErrorShape{Code: "internal", Message: "internal error"}
}

// RequestHandler processes an incoming RPC request frame from a client.
type RequestHandler func(ctx *RequestContext)

// RequestContext carries everything a handler needs.
type RequestContext struct {
	Client *Client
	Frame  Frame
	Server *Server
}

// Caller returns the authenticated participant or an unauthenticated error.
func (rc *RequestContext) Caller() (domain.Participant, error) {
	if rc.Client.Participant == nil {
		return domain.Participant{}, errs.Unauthenticated
	}
	return *rc.Client.Participant, nil
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	rc.Client.RespondError(rc.Frame.ID, ErrorShape{
		Code:    code,
		Message: message,
	})
}

// Fail sends err as an error response. Unclassified errors are logged.
func (rc *RequestContext) Fail(err error) {
	if errs.KindOf(err) == "" || errs.IsUnavailable(err) {
		rc.Server.log.Error().Err(err).Str("method", rc.Frame.Method).Str("connId", rc.Client.ConnID).Msg("rpc failed")
	}
	rc.Client.RespondError(rc.Frame.ID, errorShapeFor(err))
}

// Params unmarshals the request params into the given target.
func (rc *RequestContext) Params(target any) error {
	if rc.Frame.Params == nil {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, target)
}
