//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package server_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewcall-ai/crewcall/model/mock"
)

type wsFrame struct {
	Type           string         `json:"type"`
	Message        string         `json:"message,omitempty"`
	Token          string         `json:"token,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	Role           string         `json:"role,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	UserMessage    string         `json:"user_message,omitempty"`
	AIMessage      string         `json:"ai_message,omitempty"`
	AgentInfo      map[string]any `json:"agent_info,omitempty"`
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame wsFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestWebSocketConnectionGreeting(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dialWS(t, ts)
	frame := readFrame(t, conn)
	assert.Equal(t, "connection", frame.Type)
}

func TestWebSocketRequiresAuthBeforeMessages(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dialWS(t, ts)
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(wsFrame{Type: "user_message", Message: "hello"}))
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame.Type)
	assert.Contains(t, frame.Message, "authentication required")
}

func TestWebSocketAuthFlow(t *testing.T) {
	s := newTestServer(t, []mock.Step{
		{Response: mock.TextResponse("Hello from the sales agent.")},
	})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dialWS(t, ts)
	readFrame(t, conn)

	// A bad token is rejected without closing the connection.
	require.NoError(t, conn.WriteJSON(wsFrame{Type: "auth", Token: "bogus"}))
	frame := readFrame(t, conn)
	assert.Equal(t, "auth_error", frame.Type)

	require.NoError(t, conn.WriteJSON(wsFrame{Type: "auth", Token: directorToken}))
	frame = readFrame(t, conn)
	require.Equal(t, "auth_success", frame.Type)
	assert.Equal(t, "u1", frame.UserID)
	assert.Equal(t, "director", frame.Role)

	require.NoError(t, conn.WriteJSON(wsFrame{Type: "user_message", Message: "hello"}))
	frame = readFrame(t, conn)
	require.Equal(t, "chat_response", frame.Type)
	assert.Equal(t, "hello", frame.UserMessage)
	assert.Equal(t, "Hello from the sales agent.", frame.AIMessage)
	require.NotNil(t, frame.AgentInfo)
	assert.Equal(t, "supervisor_agent", frame.AgentInfo["type"])
	assert.Equal(t, "single_agent", frame.AgentInfo["strategy"])
	assert.Equal(t, "sales", frame.AgentInfo["primary"])
	assert.NotEmpty(t, frame.ConversationID)
}

func TestWebSocketPingPong(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dialWS(t, ts)
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(wsFrame{Type: "ping"}))
	frame := readFrame(t, conn)
	assert.Equal(t, "pong", frame.Type)
}

func TestWebSocketUnknownFrame(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dialWS(t, ts)
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(wsFrame{Type: "shrug"}))
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame.Type)
}
