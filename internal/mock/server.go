package mock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/studiowebux/chatstress/internal/uidriver"
)

const (
	DefaultHost = "localhost"
	DefaultPort = 8089
	DefaultPath = "/chat"

	// clockLayout renders time labels the way chat widgets usually do
	clockLayout  = "3:04:05 PM"
	maxExchanges = 1000
)

// Server is a WebSocket chat interface driven by a Scenario
type Server struct {
	scenario   *Scenario
	httpServer *http.Server
	listener   net.Listener
	upgrader   websocket.Upgrader
	logger     *slog.Logger
	regexes    map[int]*regexp.Regexp

	logs      []Exchange
	logsMutex sync.RWMutex
	now       func() time.Time
}

// NewServer creates a new mock server. scenario must have been validated.
func NewServer(scenario *Scenario, logger *slog.Logger) *Server {
	if scenario.Host == "" {
		scenario.Host = DefaultHost
	}
	if scenario.Path == "" {
		scenario.Path = DefaultPath
	}
	if logger == nil {
		logger = slog.Default()
	}

	regexes := make(map[int]*regexp.Regexp)
	for i, rule := range scenario.Rules {
		if rule.MatchType == MatchRegex {
			if re, err := regexp.Compile(rule.Match); err == nil {
				regexes[i] = re
			}
		}
	}

	return &Server{
		scenario: scenario,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger.With("component", "mock"),
		regexes: regexes,
		logs:    make([]Exchange, 0),
		now:     time.Now,
	}
}

// Handler returns the HTTP handler serving the chat endpoint
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.scenario.Path, s.handleChat)
	return mux
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.scenario.Host, fmt.Sprintf("%d", s.scenario.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{Handler: s.Handler()}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("mock server error", "error", err)
		}
	}()

	s.logger.Info("mock chat interface listening", "url", s.Address())
	return nil
}

// Stop stops the mock server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}

// Address returns the WebSocket URL clients should dial
func (s *Server) Address() string {
	host := net.JoinHostPort(s.scenario.Host, fmt.Sprintf("%d", s.scenario.Port))
	if s.listener != nil {
		host = s.listener.Addr().String()
	}
	return "ws://" + host + s.scenario.Path
}

// chatConn is the server side of one surface
type chatConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	convID  string
	ready   bool
}

func (c *chatConn) send(frame map[string]any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(frame)
}

// handleChat runs one conversation until the client goes away
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cc := &chatConn{conn: conn}
	var pending sync.WaitGroup
	defer pending.Wait()

	for {
		var frame uidriver.ClientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			cancel()
			return
		}

		switch frame.Type {
		case uidriver.FrameSetup:
			s.handleSetup(cc, frame.Fields)

		case uidriver.FrameUser:
			if !cc.ready {
				cc.send(map[string]any{"type": uidriver.FrameError, "text": "session not set up"})
				continue
			}
			s.record(Exchange{ConversationID: cc.convID, Direction: "in", Text: frame.Text})
			cc.send(s.messageFrame(cc, "user", frame.Text))

			name, replies := s.findReplies(frame.Text)
			if replies == nil {
				s.record(Exchange{ConversationID: cc.convID, Direction: "out", MatchedRule: name})
				continue
			}
			pending.Add(1)
			go func() {
				defer pending.Done()
				s.deliver(ctx, cc, name, frame.Text, replies)
			}()

		default:
			cc.send(map[string]any{"type": uidriver.FrameError, "text": fmt.Sprintf("unknown frame type %q", frame.Type)})
		}
	}
}

func (s *Server) handleSetup(cc *chatConn, fields map[string]string) {
	for _, name := range s.scenario.RequiredFields {
		if strings.TrimSpace(fields[name]) == "" {
			cc.send(map[string]any{"type": uidriver.FrameError, "text": fmt.Sprintf("%s is required", name)})
			return
		}
	}
	if cc.ready {
		return
	}
	cc.ready = true
	if !s.scenario.NoConversationID {
		cc.convID = uuid.NewString()
	}

	ready := map[string]any{"type": uidriver.FrameReady}
	if cc.convID != "" {
		ready["conversation_id"] = cc.convID
	}
	cc.send(ready)
	cc.send(s.messageFrame(cc, "bot", s.scenario.Greeting))
	s.record(Exchange{ConversationID: cc.convID, Direction: "out", Text: s.scenario.Greeting, MatchedRule: "greeting"})
}

// deliver sends a rule's replies in order, honouring each delay
func (s *Server) deliver(ctx context.Context, cc *chatConn, rule, input string, replies []Reply) {
	for _, reply := range replies {
		if reply.Delay > 0 {
			timer := time.NewTimer(time.Duration(reply.Delay) * time.Millisecond)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		text := strings.ReplaceAll(reply.Text, "{input}", input)
		if err := cc.send(s.messageFrame(cc, "bot", text)); err != nil {
			return
		}
		s.record(Exchange{ConversationID: cc.convID, Direction: "out", Text: text, MatchedRule: rule})
	}
}

func (s *Server) messageFrame(cc *chatConn, role, text string) map[string]any {
	frame := map[string]any{"type": uidriver.FrameMessage, "role": role, "text": text}
	label := s.now().Format(clockLayout)
	switch s.scenario.TimeLabels {
	case TimeLabelField:
		frame["time"] = label
	case TimeLabelInline:
		if strings.TrimSpace(text) != "" {
			frame["text"] = text + " " + label
		}
	}
	if cc.convID != "" {
		frame["conversation_id"] = cc.convID
	}
	return frame
}

// findReplies returns the first matching rule's replies, or the default.
// A nil slice means stay silent.
func (s *Server) findReplies(text string) (string, []Reply) {
	for i, rule := range s.scenario.Rules {
		matchType := rule.MatchType
		if matchType == "" {
			matchType = MatchContains
		}

		matched := false
		switch matchType {
		case MatchExact:
			matched = rule.Match == text
		case MatchPrefix:
			matched = strings.HasPrefix(text, rule.Match)
		case MatchContains:
			matched = strings.Contains(text, rule.Match)
		case MatchRegex:
			if re := s.regexes[i]; re != nil {
				matched = re.MatchString(text)
			}
		}
		if !matched {
			continue
		}

		name := rule.Name
		if name == "" {
			name = fmt.Sprintf("%s %s", matchType, rule.Match)
		}
		if rule.Silent {
			return name, nil
		}
		return name, rule.Replies
	}

	if len(s.scenario.Default) == 0 {
		return "default", nil
	}
	return "default", s.scenario.Default
}

// record adds an exchange to the log
func (s *Server) record(ex Exchange) {
	if ex.Timestamp.IsZero() {
		ex.Timestamp = s.now()
	}
	if s.scenario.Logging {
		s.logger.Info("exchange",
			"conversation", ex.ConversationID,
			"direction", ex.Direction,
			"rule", ex.MatchedRule,
			"text", ex.Text)
	}

	s.logsMutex.Lock()
	defer s.logsMutex.Unlock()

	s.logs = append(s.logs, ex)

	// Keep only the most recent exchanges
	if len(s.logs) > maxExchanges {
		s.logs = s.logs[len(s.logs)-maxExchanges:]
	}
}

// GetLogs returns all logged exchanges
func (s *Server) GetLogs() []Exchange {
	s.logsMutex.RLock()
	defer s.logsMutex.RUnlock()

	// Return a copy
	logs := make([]Exchange, len(s.logs))
	copy(logs, s.logs)
	return logs
}
