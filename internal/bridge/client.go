// Package bridge connects the engine to a presentation front end over a
// websocket. The front end renders text and plays audio; the engine sends
// it display and voice commands and receives the player's control input.
package bridge

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tiroq/linereveal/internal/diaglog"
	"github.com/tiroq/linereveal/internal/ipc"
	"github.com/tiroq/linereveal/internal/voice"
)

// ErrNotConnected is returned when sending before the handshake completed.
var ErrNotConnected = errors.New("bridge not connected")

// CloseAuthFailed is the close code a front end uses to reject the token.
const CloseAuthFailed = 4008

// Message is the envelope of every frame.
type Message struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type HelloData struct {
	BridgeVersion  string `json:"bridgeVersion"`
	RPCVersion     int    `json:"rpcVersion"`
	Authentication struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication"`
}

type IdentifyData struct {
	RPCVersion     int    `json:"rpcVersion"`
	Authentication string `json:"authentication,omitempty"`
	Role           string `json:"role"`
}

// Command is a display or voice instruction sent to the front end.
type Command struct {
	CommandType string      `json:"commandType"`
	CommandData interface{} `json:"commandData,omitempty"`
}

// Event is a notification from the front end.
type Event struct {
	EventType string          `json:"eventType"`
	EventData json.RawMessage `json:"eventData,omitempty"`
}

// OpCodes for the bridge protocol
const (
	OpHello      = 0
	OpIdentify   = 1
	OpIdentified = 2
	OpEvent      = 5
	OpCommand    = 6
)

// Command types
const (
	CmdSetText        = "SetText"
	CmdSetRevealCount = "SetRevealCount"
	CmdSetClip        = "SetClip"
	CmdPlayVoice      = "PlayVoice"
	CmdStopVoice      = "StopVoice"
	CmdPlayOneShot    = "PlayOneShot"
	CmdSetMute        = "SetMute"
)

// EventControl carries a control command typed by the player, such as
// {"command": "advance"}.
const EventControl = "Control"

// Role identifies this client to the front end.
const Role = "reveal-core"

// screen is what the front end should show; it is replayed after a
// reconnect.
type screen struct {
	speaker string
	text    string
	hasText bool
	reveal  int
	clip    voice.Clip
	hasClip bool
	muted   bool
}

// Client is a bridge client. It implements player.Display and
// voice.AudioSink; sends made while disconnected are dropped.
type Client struct {
	url   string
	token string

	conn       *websocket.Conn
	mu         sync.RWMutex
	writeMu    sync.Mutex
	connected  bool
	identified bool

	logger   *diaglog.Logger
	loggerMu sync.RWMutex

	inputs         chan ipc.Command
	onDisconnected func()

	screen   screen
	screenMu sync.Mutex

	// Reconnection
	reconnectEnabled bool
	reconnectDelay   time.Duration
	stopChan         chan struct{}
	stopOnce         sync.Once

	// Handshake
	handshakeTimeout time.Duration
	helloChan        chan *HelloData
	identifiedChan   chan struct{}
	errChan          chan error
}

// NewClient creates a bridge client for url. token may be empty when the
// front end does not require authentication.
func NewClient(url, token string) *Client {
	return &Client{
		url:              url,
		token:            token,
		inputs:           make(chan ipc.Command, 16),
		reconnectEnabled: true,
		reconnectDelay:   5 * time.Second,
		stopChan:         make(chan struct{}),
		handshakeTimeout: 10 * time.Second,
	}
}

// Connect dials the front end and completes the handshake.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	c.helloChan = make(chan *HelloData, 1)
	c.identifiedChan = make(chan struct{}, 1)
	c.errChan = make(chan error, 1)
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readMessages(conn)

	select {
	case hello := <-c.helloChan:
		return c.authenticate(hello)
	case err := <-c.errChan:
		c.disconnect()
		return err
	case <-time.After(c.handshakeTimeout):
		c.disconnect()
		return fmt.Errorf("timeout waiting for Hello message")
	}
}

// authenticate sends Identify and waits for Identified, then restores the
// screen.
func (c *Client) authenticate(hello *HelloData) error {
	if compat := CheckHello(hello); !compat.OK {
		log.Printf("[WARN] bridge: %s", compat.Message)
		for _, issue := range compat.Issues {
			log.Printf("[WARN] bridge:   - %s", issue)
		}
	}

	identify := IdentifyData{RPCVersion: RPCVersion, Role: Role}
	if hello.Authentication.Challenge != "" {
		if c.token == "" {
			c.disconnect()
			return fmt.Errorf("front end requires a bridge token")
		}
		identify.Authentication = AuthResponse(c.token, hello.Authentication.Salt, hello.Authentication.Challenge)
	}

	msg := Message{Op: OpIdentify}
	msg.D, _ = json.Marshal(identify)
	if err := c.write(msg); err != nil {
		c.disconnect()
		return err
	}

	select {
	case <-c.identifiedChan:
		c.mu.Lock()
		c.identified = true
		c.mu.Unlock()
		c.log(diaglog.LogEntry{
			Event:   diaglog.EventBridgeConnect,
			Payload: map[string]interface{}{"url": c.url, "bridge_version": hello.BridgeVersion},
		})
		c.replay()
		return nil
	case err := <-c.errChan:
		c.disconnect()
		return err
	case <-time.After(c.handshakeTimeout):
		c.disconnect()
		return fmt.Errorf("timeout waiting for Identified message")
	}
}

// AuthResponse is base64(sha256(base64(sha256(token+salt)) + challenge)).
func AuthResponse(token, salt, challenge string) string {
	secret := sha256.Sum256([]byte(token + salt))
	secretB64 := base64.StdEncoding.EncodeToString(secret[:])
	auth := sha256.Sum256([]byte(secretB64 + challenge))
	return base64.StdEncoding.EncodeToString(auth[:])
}

// readMessages reads and dispatches frames until the connection drops.
func (c *Client) readMessages(conn *websocket.Conn) {
	var readErr error
	defer func() {
		c.mu.RLock()
		established := c.identified && c.conn == conn
		reconnect := c.reconnectEnabled
		handler := c.onDisconnected
		c.mu.RUnlock()

		c.disconnect()
		select {
		case <-c.stopChan:
			return
		default:
		}
		// a failed handshake is reported by Connect; only a dropped
		// session reconnects on its own
		if !established {
			return
		}
		if readErr != nil && handler != nil {
			handler()
		}
		if reconnect {
			c.reconnect()
		}
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			readErr = err
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == CloseAuthFailed {
				err = fmt.Errorf("front end rejected the bridge token: %s", closeErr.Text)
			}
			select {
			case c.errChan <- err:
			default:
			}
			return
		}

		c.log(diaglog.LogEntry{
			Event:   diaglog.EventBridgeRecv,
			Payload: map[string]interface{}{"op": msg.Op},
		})

		switch msg.Op {
		case OpHello:
			var hello HelloData
			if err := json.Unmarshal(msg.D, &hello); err != nil {
				readErr = err
				select {
				case c.errChan <- err:
				default:
				}
				return
			}
			select {
			case c.helloChan <- &hello:
			default:
			}

		case OpIdentified:
			select {
			case c.identifiedChan <- struct{}{}:
			default:
			}

		case OpEvent:
			var event Event
			if err := json.Unmarshal(msg.D, &event); err == nil {
				c.handleEvent(&event)
			}
		}
	}
}

// handleEvent turns control events into commands on Inputs.
func (c *Client) handleEvent(event *Event) {
	switch event.EventType {
	case EventControl:
		var data struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return
		}
		cmd := ipc.ParseCommand(data.Command)
		if cmd == "" {
			log.Printf("[WARN] bridge: unknown control command %q", data.Command)
			return
		}
		select {
		case c.inputs <- cmd:
		default:
			log.Printf("[WARN] bridge: input queue full, dropping %q", cmd)
		}
	}
}

// Inputs delivers control commands from the front end.
func (c *Client) Inputs() <-chan ipc.Command {
	return c.inputs
}

// Send writes one command. It fails with ErrNotConnected before the
// handshake completed.
func (c *Client) Send(commandType string, data interface{}) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	msg := Message{Op: OpCommand}
	var err error
	msg.D, err = json.Marshal(Command{CommandType: commandType, CommandData: data})
	if err != nil {
		return err
	}
	c.log(diaglog.LogEntry{
		Event:   diaglog.EventBridgeSend,
		Payload: map[string]interface{}{"command_type": commandType},
	})
	return c.write(msg)
}

func (c *Client) write(msg Message) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

// send is Send for the sink methods, which have no error return.
func (c *Client) send(commandType string, data interface{}) {
	if err := c.Send(commandType, data); err != nil && !errors.Is(err, ErrNotConnected) {
		log.Printf("[WARN] bridge: %s failed: %v", commandType, err)
	}
}

// SetText shows a new line with nothing revealed yet.
func (c *Client) SetText(speaker, text string) {
	c.screenMu.Lock()
	c.screen.speaker, c.screen.text, c.screen.hasText, c.screen.reveal = speaker, text, true, 0
	c.screenMu.Unlock()
	c.send(CmdSetText, map[string]interface{}{"speaker": speaker, "text": text})
}

// SetRevealCount shows the first n characters.
func (c *Client) SetRevealCount(n int) {
	c.screenMu.Lock()
	c.screen.reveal = n
	c.screenMu.Unlock()
	c.send(CmdSetRevealCount, map[string]interface{}{"count": n})
}

func (c *Client) SetClip(clip voice.Clip) {
	c.screenMu.Lock()
	c.screen.clip, c.screen.hasClip = clip, true
	c.screenMu.Unlock()
	c.send(CmdSetClip, clip)
}

func (c *Client) Play(loop bool) {
	c.send(CmdPlayVoice, map[string]interface{}{"loop": loop})
}

func (c *Client) Stop() {
	c.send(CmdStopVoice, nil)
}

func (c *Client) PlayOneShot() {
	c.send(CmdPlayOneShot, nil)
}

func (c *Client) SetMute(muted bool) {
	c.screenMu.Lock()
	c.screen.muted = muted
	c.screenMu.Unlock()
	c.send(CmdSetMute, map[string]interface{}{"muted": muted})
}

// replay restores the front end after a (re)connect.
func (c *Client) replay() {
	c.screenMu.Lock()
	s := c.screen
	c.screenMu.Unlock()

	if s.hasClip {
		c.send(CmdSetClip, s.clip)
	}
	c.send(CmdSetMute, map[string]interface{}{"muted": s.muted})
	if s.hasText {
		c.send(CmdSetText, map[string]interface{}{"speaker": s.speaker, "text": s.text})
		c.send(CmdSetRevealCount, map[string]interface{}{"count": s.reveal})
	}
}

// disconnect closes the websocket connection
func (c *Client) disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.log(diaglog.LogEntry{
			Event:   diaglog.EventBridgeDisconnect,
			Payload: map[string]interface{}{"url": c.url},
		})
		if err := c.conn.Close(); err != nil {
			log.Printf("[WARN] bridge: failed to close connection: %v", err)
		}
		c.conn = nil
	}
	c.connected = false
	c.identified = false
}

// reconnect retries with exponential backoff and jitter until it succeeds
// or the client is closed.
func (c *Client) reconnect() {
	c.mu.RLock()
	delay := c.reconnectDelay
	c.mu.RUnlock()
	attempt := 0
	for {
		select {
		case <-c.stopChan:
			return
		case <-time.After(delay):
			attempt++
			if err := c.Connect(); err == nil {
				log.Printf("[RECONNECT] bridge reconnected on attempt %d", attempt)
				return
			} else {
				log.Printf("[RECONNECT] bridge attempt %d failed: %v", attempt, err)
			}

			delay = delay * 2
			if delay > 60*time.Second {
				delay = 60 * time.Second
			}
			jitter := time.Duration(float64(delay) * 0.2 * (rand.Float64() - 0.5))
			delay = delay + jitter
			if delay < time.Second {
				delay = time.Second
			}
		}
	}
}

// StartReconnect keeps retrying Connect in the background until it
// succeeds or the client is closed. Use it when the first Connect fails.
func (c *Client) StartReconnect() {
	go c.reconnect()
}

// Close disconnects and stops reconnection.
func (c *Client) Close() {
	c.mu.Lock()
	c.reconnectEnabled = false
	c.mu.Unlock()
	c.stopOnce.Do(func() { close(c.stopChan) })
	c.disconnect()
}

// SetLogger injects a diaglog.Logger. Passing nil disables structured
// logging.
func (c *Client) SetLogger(l *diaglog.Logger) {
	c.loggerMu.Lock()
	c.logger = l
	c.loggerMu.Unlock()
}

func (c *Client) log(entry diaglog.LogEntry) {
	c.loggerMu.RLock()
	l := c.logger
	c.loggerMu.RUnlock()
	if l == nil {
		return
	}
	if entry.Component == "" {
		entry.Component = diaglog.ComponentBridge
	}
	l.Log(entry)
}

// SetReconnectEnabled enables/disables automatic reconnection
func (c *Client) SetReconnectEnabled(enabled bool) {
	c.mu.Lock()
	c.reconnectEnabled = enabled
	c.mu.Unlock()
}

// SetReconnectDelay sets the wait before the first reconnect attempt.
func (c *Client) SetReconnectDelay(d time.Duration) {
	c.mu.Lock()
	c.reconnectDelay = d
	c.mu.Unlock()
}

// SetHandshakeTimeout bounds each handshake step.
func (c *Client) SetHandshakeTimeout(d time.Duration) {
	c.handshakeTimeout = d
}

// OnDisconnected registers a callback for connection loss.
func (c *Client) OnDisconnected(handler func()) {
	c.mu.Lock()
	c.onDisconnected = handler
	c.mu.Unlock()
}

// IsConnected returns current connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.identified
}
