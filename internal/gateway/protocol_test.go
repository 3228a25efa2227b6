package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunilpie-kumar/kustom-backend/internal/domain"
)

func marshal(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestFrameWireFormat(t *testing.T) {
	req, err := NewRequest("r1", "chat.join", conversationParams{ConversationID: "c1"})
	require.NoError(t, err)
	res, err := NewResponse("r1", map[string]any{"joined": true})
	require.NoError(t, err)
	ev, err := NewEvent("chat:typing", map[string]any{"isTyping": true}, 42)
	require.NoError(t, err)
	unsequenced, err := NewEvent("connect.challenge", map[string]any{"nonce": "n"}, 0)
	require.NoError(t, err)

	tests := []struct {
		name  string
		frame Frame
		want  string
	}{
		{"request", req, `{"type":"req","id":"r1","method":"chat.join","params":{"conversationId":"c1"}}`},
		{"response", res, `{"type":"res","id":"r1","ok":true,"payload":{"joined":true}}`},
		{
			"error response",
			NewErrorResponse("r2", ErrorShape{Code: "invalid_argument", Message: "content is required", Field: "content"}),
			`{"type":"res","id":"r2","ok":false,"error":{"code":"invalid_argument","message":"content is required","field":"content"}}`,
		},
		{"event", ev, `{"type":"event","event":"chat:typing","payload":{"isTyping":true},"seq":42}`},
		{"event without seq", unsequenced, `{"type":"event","event":"connect.challenge","payload":{"nonce":"n"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.JSONEq(t, tt.want, marshal(t, tt.frame))
		})
	}
}

func TestFrameDecode_Request(t *testing.T) {
	var f Frame
	require.NoError(t, json.Unmarshal([]byte(`{"type":"req","id":"7","method":"chat.read","params":{"conversationId":"c9"}}`), &f))

	assert.Equal(t, FrameTypeRequest, f.Type)
	assert.Equal(t, "chat.read", f.Method)
	assert.Nil(t, f.OK)

	var p conversationParams
	require.NoError(t, json.Unmarshal(f.Params, &p))
	assert.Equal(t, "c9", p.ConversationID)
}

func TestErrorShape_FieldOmittedWhenEmpty(t *testing.T) {
	assert.JSONEq(t, `{"code":"not_found","message":"conversation not found"}`,
		marshal(t, ErrorShape{Code: "not_found", Message: "conversation not found"}))
}

func TestConnectParams(t *testing.T) {
	assert.JSONEq(t, `{"client":{"id":"web"}}`, marshal(t, ConnectParams{Client: ClientInfo{ID: "web"}}))

	var p ConnectParams
	require.NoError(t, json.Unmarshal([]byte(`{"client":{"id":"ios","version":"2.1"},"auth":{"token":"abc"}}`), &p))
	assert.Equal(t, "2.1", p.Client.Version)
	require.NotNil(t, p.Auth)
	assert.Equal(t, "abc", p.Auth.Token)
}

func TestHelloOK_Participant(t *testing.T) {
	anon := marshal(t, HelloOK{Protocol: ProtocolVersion, Server: ServerInfo{ConnID: "conn-1"}})
	assert.Contains(t, anon, `"participant":null`)

	p := domain.Provider("p1")
	var decoded HelloOK
	require.NoError(t, json.Unmarshal([]byte(marshal(t, HelloOK{Protocol: ProtocolVersion, Participant: &p})), &decoded))
	require.NotNil(t, decoded.Participant)
	assert.True(t, decoded.Participant.Equal(p))
}
