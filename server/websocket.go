//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crewcall-ai/crewcall/identity"
	"github.com/crewcall-ai/crewcall/log"
)

// Inbound WebSocket frame types.
const (
	frameAuth        = "auth"
	frameUserMessage = "user_message"
	framePing        = "ping"
)

// Outbound WebSocket frame types.
const (
	frameConnection   = "connection"
	frameAuthSuccess  = "auth_success"
	frameAuthError    = "auth_error"
	frameChatResponse = "chat_response"
	frameError        = "error"
	framePong         = "pong"
)

type wsInbound struct {
	Type           string `json:"type"`
	Token          string `json:"token,omitempty"`
	Message        string `json:"message,omitempty"`
	AgentType      string `json:"agent_type,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Mode           string `json:"mode,omitempty"`
}

type wsAgentInfo struct {
	Type       string   `json:"type"`
	Primary    string   `json:"primary,omitempty"`
	Strategy   string   `json:"strategy,omitempty"`
	AgentsUsed []string `json:"agents_used,omitempty"`
}

type wsOutbound struct {
	Type           string       `json:"type"`
	Message        string       `json:"message,omitempty"`
	UserID         string       `json:"user_id,omitempty"`
	Role           string       `json:"role,omitempty"`
	ConversationID string       `json:"conversation_id,omitempty"`
	UserMessage    string       `json:"user_message,omitempty"`
	AIMessage      string       `json:"ai_message,omitempty"`
	AgentInfo      *wsAgentInfo `json:"agent_info,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
}

// handleWebSocket upgrades the connection and serves frames until the peer
// disconnects. Messages are rejected until an auth frame succeeds.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := func(frame wsOutbound) bool {
		frame.Timestamp = time.Now()
		if err := conn.WriteJSON(frame); err != nil {
			log.Debugf("websocket write failed: %v", err)
			return false
		}
		return true
	}

	if !send(wsOutbound{Type: frameConnection, Message: "connected"}) {
		return
	}

	var caller identity.Caller
	authed := false
	for {
		var frame wsInbound
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debugf("websocket closed: %v", err)
			}
			return
		}
		switch frame.Type {
		case frameAuth:
			c, err := s.auth.Authenticate(r.Context(), frame.Token)
			if err != nil {
				if !send(wsOutbound{Type: frameAuthError, Message: "invalid token"}) {
					return
				}
				continue
			}
			caller, authed = c, true
			if !send(wsOutbound{
				Type:   frameAuthSuccess,
				UserID: caller.UserID,
				Role:   string(caller.Role),
			}) {
				return
			}
		case framePing:
			if !send(wsOutbound{Type: framePong}) {
				return
			}
		case frameUserMessage:
			if !authed {
				if !send(wsOutbound{Type: frameError, Message: "authentication required"}) {
					return
				}
				continue
			}
			if !s.serveWSMessage(r, conn, send, caller, frame) {
				return
			}
		default:
			if !send(wsOutbound{Type: frameError, Message: "unknown frame type"}) {
				return
			}
		}
	}
}

func (s *Server) serveWSMessage(r *http.Request, conn *websocket.Conn,
	send func(wsOutbound) bool, caller identity.Caller, frame wsInbound) bool {
	if frame.Message == "" {
		return send(wsOutbound{Type: frameError, Message: "message is required"})
	}
	rsp, err := s.supervisor.Handle(r.Context(), &identity.Query{
		Caller:         caller,
		Text:           frame.Message,
		PreferredAgent: frame.AgentType,
		ConversationID: frame.ConversationID,
		Mode:           identity.SelectionMode(frame.Mode),
	})
	if err != nil {
		log.Errorf("websocket chat turn failed: %v", err)
		return send(wsOutbound{Type: frameError, Message: "internal error"})
	}
	return send(wsOutbound{
		Type:           frameChatResponse,
		ConversationID: rsp.ConversationID,
		UserMessage:    frame.Message,
		AIMessage:      rsp.Content,
		AgentInfo: &wsAgentInfo{
			Type:       s.sourceType(rsp.Source),
			Primary:    string(rsp.Routing.Primary),
			Strategy:   string(rsp.Routing.Strategy),
			AgentsUsed: rsp.Routing.AgentsUsed(),
		},
	})
}

// checkOrigin enforces the configured origin allowlist. An empty list
// allows every origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
