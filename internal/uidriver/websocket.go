package uidriver

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/oauth2"
)

// Frame types of the chat protocol
const (
	FrameSetup   = "setup"
	FrameUser    = "user"
	FrameReady   = "ready"
	FrameMessage = "message"
	FrameError   = "error"
)

const (
	// DefaultHandshakeTimeout bounds the WebSocket opening handshake
	DefaultHandshakeTimeout = 30 * time.Second
	closeGracePeriod        = time.Second
)

// ErrDisconnected is returned once a surface's connection has gone away
var ErrDisconnected = errors.New("surface disconnected")

// ClientFrame is a frame sent from a surface to the chat server
type ClientFrame struct {
	Type   string            `json:"type"`
	Fields map[string]string `json:"fields,omitempty"`
	Text   string            `json:"text,omitempty"`
}

// WebSocketOptions configures NewWebSocketBrowser
type WebSocketOptions struct {
	URL                string
	Headers            map[string]string
	Selectors          Selectors
	HandshakeTimeout   time.Duration
	InsecureSkipVerify bool
	// TokenSource, when set, adds an Authorization bearer header to every dial
	TokenSource oauth2.TokenSource
}

// WebSocketBrowser opens one WebSocket connection per surface
type WebSocketBrowser struct {
	opts      WebSocketOptions
	selectors *compiledSelectors
	dialer    *websocket.Dialer

	mu       sync.Mutex
	surfaces []*wsSurface
	closed   bool
}

// NewWebSocketBrowser validates opts and builds the shared context
func NewWebSocketBrowser(opts WebSocketOptions) (*WebSocketBrowser, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("target URL must use ws:// or wss://, got %q", opts.URL)
	}
	sel, err := compileSelectors(opts.Selectors)
	if err != nil {
		return nil, err
	}

	handshake := opts.HandshakeTimeout
	if handshake <= 0 {
		handshake = DefaultHandshakeTimeout
	}
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshake,
	}
	if opts.InsecureSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &WebSocketBrowser{
		opts:      opts,
		selectors: sel,
		dialer:    dialer,
	}, nil
}

// NewSurface dials a fresh connection that shares nothing with other surfaces
func (b *WebSocketBrowser) NewSurface(ctx context.Context) (Surface, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("browser is closed")
	}

	headers := http.Header{}
	for key, value := range b.opts.Headers {
		headers.Set(key, value)
	}
	if b.opts.TokenSource != nil {
		token, err := b.opts.TokenSource.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to obtain access token: %w", err)
		}
		token.SetAuthHeader(&http.Request{Header: headers})
	}

	conn, resp, err := b.dialer.DialContext(ctx, b.opts.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("connection failed: %w", err)
	}

	s := newWSSurface(conn, b.selectors)
	go s.readLoop()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.close()
		return nil, fmt.Errorf("browser is closed")
	}
	b.surfaces = append(b.surfaces, s)
	return s, nil
}

// Close tears down every surface. Only the first call has an effect.
func (b *WebSocketBrowser) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	surfaces := b.surfaces
	b.surfaces = nil
	b.mu.Unlock()

	var errs []error
	for _, s := range surfaces {
		if err := s.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type wsSurface struct {
	conn *websocket.Conn
	sel  *compiledSelectors

	writeMu sync.Mutex

	mu           sync.Mutex
	aiMessages   []Message
	lastUserTime string
	convID       string
	readErr      error

	ready     chan struct{}
	readyOnce sync.Once
	rejected  chan string
	done      chan struct{}
	closeOnce sync.Once
}

func newWSSurface(conn *websocket.Conn, sel *compiledSelectors) *wsSurface {
	return &wsSurface{
		conn:     conn,
		sel:      sel,
		ready:    make(chan struct{}),
		rejected: make(chan string, 1),
		done:     make(chan struct{}),
	}
}

// readLoop records every server frame until the connection drops
func (s *wsSurface) readLoop() {
	defer close(s.done)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			return
		}

		var frame map[string]any
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		frameType, _ := frame["type"].(string)

		s.mu.Lock()
		if s.convID == "" {
			s.convID = lookup(s.sel.convID, frame)
		}
		if frameType == FrameMessage {
			role := lookup(s.sel.role, frame)
			switch role {
			case s.sel.aiRole:
				s.aiMessages = append(s.aiMessages, Message{
					Text:        lookup(s.sel.text, frame),
					UITimestamp: lookup(s.sel.time, frame),
				})
			case s.sel.userRole:
				s.lastUserTime = lookup(s.sel.time, frame)
			}
		}
		s.mu.Unlock()

		switch frameType {
		case FrameReady:
			s.readyOnce.Do(func() { close(s.ready) })
		case FrameError:
			select {
			case s.rejected <- lookup(s.sel.text, frame):
			default:
			}
		}
	}
}

func (s *wsSurface) write(ctx context.Context, frame ClientFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetWriteDeadline(deadline)
		defer s.conn.SetWriteDeadline(time.Time{})
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send %s frame: %w", frame.Type, err)
	}
	return nil
}

func (s *wsSurface) disconnected() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return fmt.Errorf("%w: %v", ErrDisconnected, s.readErr)
	}
	return ErrDisconnected
}

func (s *wsSurface) Setup(ctx context.Context, fields map[string]string) error {
	if err := s.write(ctx, ClientFrame{Type: FrameSetup, Fields: fields}); err != nil {
		return err
	}
	select {
	case <-s.ready:
		return nil
	case reason := <-s.rejected:
		return fmt.Errorf("setup rejected: %s", reason)
	case <-s.done:
		return s.disconnected()
	case <-ctx.Done():
		return fmt.Errorf("setup not accepted: %w", ctx.Err())
	}
}

func (s *wsSurface) Submit(ctx context.Context, text string) error {
	select {
	case <-s.done:
		return s.disconnected()
	default:
	}
	return s.write(ctx, ClientFrame{Type: FrameUser, Text: text})
}

func (s *wsSurface) AIMessageCount(ctx context.Context) (int, error) {
	select {
	case <-s.done:
		s.mu.Lock()
		n := len(s.aiMessages)
		s.mu.Unlock()
		return n, s.disconnected()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.aiMessages), nil
}

func (s *wsSurface) AIMessage(ctx context.Context, index int) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.aiMessages) {
		return Message{}, fmt.Errorf("%w: %d of %d", ErrMessageIndex, index, len(s.aiMessages))
	}
	return s.aiMessages[index], nil
}

func (s *wsSurface) LastUserTimestamp(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUserTime, nil
}

func (s *wsSurface) ConversationID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convID, nil
}

func (s *wsSurface) close() error {
	var err error
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}
