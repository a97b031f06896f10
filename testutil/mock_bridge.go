package testutil

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// BridgeCommand is one command frame a MockBridge received.
type BridgeCommand struct {
	Type string
	Data map[string]interface{}
}

// MockBridge simulates a presentation front end: it runs the hello /
// identify handshake and records every command the engine sends.
type MockBridge struct {
	server *httptest.Server

	mu          sync.Mutex
	conn        *websocket.Conn
	writeMu     sync.Mutex
	token       string
	identify    map[string]interface{}
	commands    []BridgeCommand
	connections int
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Challenge and salt the mock sends when a token is required.
const (
	MockChallenge = "testchallenge"
	MockSalt      = "testsalt"
)

// NewMockBridge starts a front end. A non-empty token makes the handshake
// require authentication; a wrong answer closes with code 4008.
func NewMockBridge(token string) *MockBridge {
	m := &MockBridge{token: token}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL is the websocket address of the mock.
func (m *MockBridge) URL() string {
	return "ws" + strings.TrimPrefix(m.server.URL, "http")
}

// Close shuts the server down.
func (m *MockBridge) Close() {
	m.DropConnection()
	m.server.Close()
}

// DropConnection closes the current client connection, if any.
func (m *MockBridge) DropConnection() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (m *MockBridge) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	auth := map[string]interface{}{}
	if m.token != "" {
		auth = map[string]interface{}{"challenge": MockChallenge, "salt": MockSalt}
	}
	if err := conn.WriteJSON(map[string]interface{}{
		"op": 0,
		"d":  map[string]interface{}{"bridgeVersion": "1.0.0", "rpcVersion": 1, "authentication": auth},
	}); err != nil {
		return
	}

	var identify struct {
		Op int                    `json:"op"`
		D  map[string]interface{} `json:"d"`
	}
	if err := conn.ReadJSON(&identify); err != nil || identify.Op != 1 {
		return
	}
	if m.token != "" {
		got, _ := identify.D["authentication"].(string)
		if got != expectedAuth(m.token) {
			msg := websocket.FormatCloseMessage(4008, "authentication failed")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}
	}

	m.mu.Lock()
	m.conn = conn
	m.identify = identify.D
	m.connections++
	m.mu.Unlock()

	if err := m.write(conn, map[string]interface{}{"op": 2, "d": map[string]interface{}{}}); err != nil {
		return
	}

	for {
		var msg struct {
			Op int             `json:"op"`
			D  json.RawMessage `json:"d"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Op != 6 {
			continue
		}
		var cmd struct {
			CommandType string                 `json:"commandType"`
			CommandData map[string]interface{} `json:"commandData"`
		}
		if err := json.Unmarshal(msg.D, &cmd); err != nil {
			continue
		}
		m.mu.Lock()
		m.commands = append(m.commands, BridgeCommand{Type: cmd.CommandType, Data: cmd.CommandData})
		m.mu.Unlock()
	}
}

func (m *MockBridge) write(conn *websocket.Conn, v interface{}) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func expectedAuth(token string) string {
	secret := sha256.Sum256([]byte(token + MockSalt))
	secretB64 := base64.StdEncoding.EncodeToString(secret[:])
	auth := sha256.Sum256([]byte(secretB64 + MockChallenge))
	return base64.StdEncoding.EncodeToString(auth[:])
}

// SendControl pushes a Control event carrying command to the client.
func (m *MockBridge) SendControl(command string) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return websocket.ErrCloseSent
	}
	return m.write(conn, map[string]interface{}{
		"op": 5,
		"d": map[string]interface{}{
			"eventType": "Control",
			"eventData": map[string]interface{}{"command": command},
		},
	})
}

// Commands returns a copy of the commands received so far.
func (m *MockBridge) Commands() []BridgeCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]BridgeCommand, len(m.commands))
	copy(out, m.commands)
	return out
}

// CommandTypes lists the types of the commands received so far.
func (m *MockBridge) CommandTypes() []string {
	cmds := m.Commands()
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.Type
	}
	return out
}

// ResetCommands forgets the commands received so far.
func (m *MockBridge) ResetCommands() {
	m.mu.Lock()
	m.commands = nil
	m.mu.Unlock()
}

// Identify returns the payload of the last Identify frame.
func (m *MockBridge) Identify() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identify
}

// Connections counts completed handshakes.
func (m *MockBridge) Connections() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connections
}
