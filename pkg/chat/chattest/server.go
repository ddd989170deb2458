// Package chattest provides an in-process marketplace chat backend for tests:
// a REST history endpoint and a websocket live channel that can push messages,
// drop connections and reject credentials on demand.
package chattest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/go-go-golems/livechat/pkg/chat"
)

type peer struct {
	conn           *websocket.Conn
	conversationID string
	token          string
	mu             sync.Mutex
}

func (p *peer) write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// Server is a fake backend. The zero value is not usable; call NewServer.
type Server struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu              sync.Mutex
	peers           map[*peer]struct{}
	dials           int
	handshakeStatus int
	historyStatus   int
	history         map[string][]chat.Message
	conversations   []chat.Conversation
	received        []chat.OutboundMessage
	echo            bool
	echoSender      string
}

// NewServer starts a backend that is shut down when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		upgrader:   websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		peers:      map[*peer]struct{}{},
		history:    map[string][]chat.Message{},
		echoSender: "me",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/ws", s.handleWS)
	mux.HandleFunc("GET /api/v1/conversations", s.handleConversations)
	mux.HandleFunc("GET /api/v1/conversations/{id}/messages", s.handleHistory)
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// APIURL is the REST base URL.
func (s *Server) APIURL() string { return s.srv.URL + "/api/v1" }

// WSURL is the live channel URL.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/api/v1/ws"
}

func (s *Server) Close() {
	s.DropAll()
	s.srv.Close()
}

// SetHistory replaces the stored history of a conversation.
func (s *Server) SetHistory(conversationID string, msgs ...chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]chat.Message(nil), msgs...)
	sort.Slice(cp, func(i, j int) bool { return chat.Less(cp[i], cp[j]) })
	s.history[conversationID] = cp
}

// SetConversations replaces the conversation directory of the signed-in user.
func (s *Server) SetConversations(convs ...chat.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = append([]chat.Conversation(nil), convs...)
}

// SetHistoryStatus makes the REST endpoints answer with status (0 restores normal behavior).
func (s *Server) SetHistoryStatus(status int) {
	s.mu.Lock()
	s.historyStatus = status
	s.mu.Unlock()
}

// RejectHandshake makes the live channel refuse upgrades with status (0 accepts again).
func (s *Server) RejectHandshake(status int) {
	s.mu.Lock()
	s.handshakeStatus = status
	s.mu.Unlock()
}

// EchoSends makes the server turn every outbound frame into a Message pushed to
// all connections of that conversation, like the real backend does.
func (s *Server) EchoSends(senderID string) {
	s.mu.Lock()
	s.echo = true
	s.echoSender = senderID
	s.mu.Unlock()
}

// Push sends m to every live connection.
func (s *Server) Push(m chat.Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.PushRaw(b)
}

// PushRaw sends a raw text frame to every live connection.
func (s *Server) PushRaw(data []byte) error {
	var firstErr error
	for _, p := range s.snapshotPeers() {
		if err := p.write(data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DropAll closes every live connection without a close handshake.
func (s *Server) DropAll() {
	s.mu.Lock()
	peers := s.peers
	s.peers = map[*peer]struct{}{}
	s.mu.Unlock()
	for p := range peers {
		_ = p.conn.Close()
	}
}

// Connections is the number of live connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// Dials is the number of accepted handshakes so far.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// Received returns every outbound frame read from clients.
func (s *Server) Received() []chat.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.OutboundMessage(nil), s.received...)
}

// Tokens returns the credentials presented by live connections.
func (s *Server) Tokens() []string {
	var out []string
	for _, p := range s.snapshotPeers() {
		out = append(out, p.token)
	}
	return out
}

func (s *Server) snapshotPeers() []*peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		out = append(out, p)
	}
	return out
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	s.mu.Lock()
	status := s.handshakeStatus
	s.mu.Unlock()
	if token == "" {
		status = http.StatusUnauthorized
	}
	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	p := &peer{conn: conn, conversationID: r.URL.Query().Get("conversation_id"), token: token}
	s.mu.Lock()
	s.peers[p] = struct{}{}
	s.dials++
	s.mu.Unlock()

	go s.readPeer(p)
}

func (s *Server) readPeer(p *peer) {
	defer func() {
		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()
		_ = p.conn.Close()
	}()
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		var out chat.OutboundMessage
		if err := json.Unmarshal(data, &out); err != nil {
			continue
		}
		s.mu.Lock()
		s.received = append(s.received, out)
		echo, sender := s.echo, s.echoSender
		s.mu.Unlock()
		if echo {
			_ = s.Push(chat.Message{
				ID:             uuid.NewString(),
				ConversationID: out.ConversationID,
				SenderID:       sender,
				RecipientID:    out.RecipientID,
				Content:        out.Content,
				CreatedAt:      time.Now().UTC(),
				ClientID:       out.ClientID,
			})
		}
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	convID := r.PathValue("id")
	s.mu.Lock()
	status := s.historyStatus
	all, ok := s.history[convID]
	all = append([]chat.Message(nil), all...)
	s.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	if !ok {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	page, more := window(all, r.URL.Query().Get("before"), r.URL.Query().Get("after"), limit)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": page, "has_more": more})
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := s.historyStatus
	convs := append([]chat.Conversation{}, s.conversations...)
	s.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": convs})
}

func window(all []chat.Message, before, after string, limit int) ([]chat.Message, bool) {
	idx := func(id string) int {
		for i, m := range all {
			if m.ID == id {
				return i
			}
		}
		return -1
	}
	switch {
	case after != "":
		i := idx(after)
		rest := all[i+1:]
		if len(rest) > limit {
			return rest[:limit], true
		}
		return rest, false
	case before != "":
		i := idx(before)
		if i < 0 {
			i = 0
		}
		all = all[:i]
	}
	if len(all) > limit {
		return all[len(all)-limit:], true
	}
	return all, false
}
