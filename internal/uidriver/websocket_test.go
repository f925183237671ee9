package uidriver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/oauth2"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// chatHandler is a minimal chat server: it accepts setup, greets, and
// answers every user frame with "echo: <text>"
func chatHandler(t *testing.T, convID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var frame ClientFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			switch frame.Type {
			case FrameSetup:
				if frame.Fields["center_id"] == "" {
					conn.WriteJSON(map[string]any{"type": FrameError, "text": "center_id is required"})
					continue
				}
				conn.WriteJSON(map[string]any{"type": FrameReady, "conversation_id": convID})
				conn.WriteJSON(map[string]any{"type": FrameMessage, "role": "bot", "text": "Welcome", "time": "2:51:59 PM"})
			case FrameUser:
				conn.WriteJSON(map[string]any{"type": FrameMessage, "role": "user", "text": frame.Text, "time": "2:52:00 PM"})
				conn.WriteJSON(map[string]any{"type": FrameMessage, "role": "bot", "text": "echo: " + frame.Text, "time": "2:52:01 PM"})
			}
		}
	}
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func waitForCount(t *testing.T, s Surface, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := s.AIMessageCount(context.Background())
		if err != nil {
			t.Fatalf("AIMessageCount failed: %v", err)
		}
		if n >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %d AI messages", want)
}

func TestWebSocketSurface_Conversation(t *testing.T) {
	server := httptest.NewServer(chatHandler(t, "conv-42"))
	defer server.Close()

	browser, err := NewWebSocketBrowser(WebSocketOptions{URL: wsURL(server)})
	if err != nil {
		t.Fatalf("Failed to create browser: %v", err)
	}
	defer browser.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	surface, err := browser.NewSurface(ctx)
	if err != nil {
		t.Fatalf("Failed to open surface: %v", err)
	}
	if err := surface.Setup(ctx, map[string]string{"center_id": "204"}); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	waitForCount(t, surface, 1)
	greeting, err := surface.AIMessage(ctx, 0)
	if err != nil {
		t.Fatalf("Failed to read greeting: %v", err)
	}
	if greeting.Text != "Welcome" || greeting.UITimestamp != "2:51:59 PM" {
		t.Errorf("Unexpected greeting: %+v", greeting)
	}

	id, _ := surface.ConversationID(ctx)
	if id != "conv-42" {
		t.Errorf("Expected conversation id 'conv-42', got %q", id)
	}

	if err := surface.Submit(ctx, "Hi"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitForCount(t, surface, 2)
	reply, _ := surface.AIMessage(ctx, 1)
	if reply.Text != "echo: Hi" {
		t.Errorf("Expected 'echo: Hi', got %q", reply.Text)
	}
	if ts, _ := surface.LastUserTimestamp(ctx); ts != "2:52:00 PM" {
		t.Errorf("Expected user time label '2:52:00 PM', got %q", ts)
	}

	if _, err := surface.AIMessage(ctx, 5); !errors.Is(err, ErrMessageIndex) {
		t.Errorf("Expected ErrMessageIndex, got %v", err)
	}
}

func TestWebSocketSurface_SetupRejected(t *testing.T) {
	server := httptest.NewServer(chatHandler(t, "conv-1"))
	defer server.Close()

	browser, err := NewWebSocketBrowser(WebSocketOptions{URL: wsURL(server)})
	if err != nil {
		t.Fatalf("Failed to create browser: %v", err)
	}
	defer browser.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	surface, err := browser.NewSurface(ctx)
	if err != nil {
		t.Fatalf("Failed to open surface: %v", err)
	}

	err = surface.Setup(ctx, map[string]string{})
	if err == nil || !strings.Contains(err.Error(), "center_id is required") {
		t.Errorf("Expected setup rejection, got %v", err)
	}
}

func TestWebSocketSurface_SetupTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	browser, _ := NewWebSocketBrowser(WebSocketOptions{URL: wsURL(server)})
	defer browser.Close()

	surface, err := browser.NewSurface(context.Background())
	if err != nil {
		t.Fatalf("Failed to open surface: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := surface.Setup(ctx, map[string]string{"center_id": "1"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestWebSocketSurface_CustomSelectors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage()
		conn.WriteJSON(map[string]any{"type": FrameReady})
		conn.WriteJSON(map[string]any{
			"type": FrameMessage,
			"payload": map[string]any{
				"author":  map[string]any{"kind": "assistant"},
				"content": "Nested hello",
				"meta":    map[string]any{"session": 1234, "clock": "9:00:00 AM"},
			},
		})
		conn.ReadMessage()
	}))
	defer server.Close()

	browser, err := NewWebSocketBrowser(WebSocketOptions{
		URL: wsURL(server),
		Selectors: Selectors{
			Role:           "payload.author.kind",
			Text:           "payload.content",
			Time:           "payload.meta.clock",
			ConversationID: "payload.meta.session",
			AIRole:         "assistant",
		},
	})
	if err != nil {
		t.Fatalf("Failed to create browser: %v", err)
	}
	defer browser.Close()

	ctx := context.Background()
	surface, err := browser.NewSurface(ctx)
	if err != nil {
		t.Fatalf("Failed to open surface: %v", err)
	}
	if err := surface.Setup(ctx, nil); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	waitForCount(t, surface, 1)

	msg, _ := surface.AIMessage(ctx, 0)
	if msg.Text != "Nested hello" || msg.UITimestamp != "9:00:00 AM" {
		t.Errorf("Unexpected message: %+v", msg)
	}
	if id, _ := surface.ConversationID(ctx); id != "1234" {
		t.Errorf("Expected conversation id '1234', got %q", id)
	}
}

func TestWebSocketSurface_DisconnectSurfacesError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer server.Close()

	browser, _ := NewWebSocketBrowser(WebSocketOptions{URL: wsURL(server)})
	defer browser.Close()

	surface, err := browser.NewSurface(context.Background())
	if err != nil {
		t.Fatalf("Failed to open surface: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := surface.AIMessageCount(context.Background()); err != nil {
			if !errors.Is(err, ErrDisconnected) {
				t.Errorf("Expected ErrDisconnected, got %v", err)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Expected disconnect to be reported")
}

type staticTokenSource struct{ token string }

func (s staticTokenSource) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: s.token, TokenType: "Bearer"}, nil
}

func TestWebSocketBrowser_AttachesBearerToken(t *testing.T) {
	var mu sync.Mutex
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotAuth = r.Header.Get("Authorization")
		mu.Unlock()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage()
	}))
	defer server.Close()

	browser, err := NewWebSocketBrowser(WebSocketOptions{
		URL:         wsURL(server),
		Headers:     map[string]string{"X-Load-Test": "1"},
		TokenSource: staticTokenSource{token: "secret"},
	})
	if err != nil {
		t.Fatalf("Failed to create browser: %v", err)
	}
	defer browser.Close()

	if _, err := browser.NewSurface(context.Background()); err != nil {
		t.Fatalf("Failed to open surface: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotAuth != "Bearer secret" {
		t.Errorf("Expected 'Bearer secret', got %q", gotAuth)
	}
}

func TestWebSocketBrowser_CloseIsIdempotent(t *testing.T) {
	server := httptest.NewServer(chatHandler(t, "c"))
	defer server.Close()

	browser, _ := NewWebSocketBrowser(WebSocketOptions{URL: wsURL(server)})
	if _, err := browser.NewSurface(context.Background()); err != nil {
		t.Fatalf("Failed to open surface: %v", err)
	}
	if err := browser.Close(); err != nil {
		t.Errorf("First close failed: %v", err)
	}
	if err := browser.Close(); err != nil {
		t.Errorf("Second close should be a no-op, got %v", err)
	}
	if _, err := browser.NewSurface(context.Background()); err == nil {
		t.Errorf("Expected error opening a surface on a closed browser")
	}
}

func TestNewWebSocketBrowser_Validation(t *testing.T) {
	if _, err := NewWebSocketBrowser(WebSocketOptions{URL: "http://example.com"}); err == nil {
		t.Errorf("Expected error for non-websocket scheme")
	}
	if _, err := NewWebSocketBrowser(WebSocketOptions{URL: "ws://example.com", Selectors: Selectors{Text: "[[["}}); err == nil {
		t.Errorf("Expected error for invalid selector")
	}
}

func TestLookup_RendersScalars(t *testing.T) {
	var frame any
	json.Unmarshal([]byte(`{"n": 12, "b": true, "s": "x"}`), &frame)
	sel, err := compileSelectors(Selectors{Text: "n", Role: "b", Time: "s", ConversationID: "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if got := lookup(sel.text, frame); got != "12" {
		t.Errorf("Expected '12', got %q", got)
	}
	if got := lookup(sel.role, frame); got != "true" {
		t.Errorf("Expected 'true', got %q", got)
	}
	if got := lookup(sel.convID, frame); got != "" {
		t.Errorf("Expected empty for missing field, got %q", got)
	}
}
