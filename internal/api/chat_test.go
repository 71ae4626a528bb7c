package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/erazemk/bazar/internal/assistant"
	"github.com/erazemk/bazar/internal/model"
)

type chatSessionBody struct {
	ID       int64               `json:"id"`
	Active   bool                `json:"isActive"`
	Messages []model.ChatMessage `json:"messages"`
}

// fakeUpstream answers generateContent calls with "You asked: <last text>"
// or with status when it is set.
func fakeUpstream(t *testing.T, status *atomic.Int32, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if code := int(status.Load()); code != 0 {
			http.Error(w, `{"error":{"message":"denied"}}`, code)
			return
		}
		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Contents) == 0 {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		last := req.Contents[len(req.Contents)-1].Parts[0].Text
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{
					"role":  "model",
					"parts": []any{map[string]string{"text": "You asked: " + last}},
				},
			}},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestChatAssistant(t *testing.T) {
	var status, calls atomic.Int32
	upstream := fakeUpstream(t, &status, &calls)
	env := setupTestServer(t, func(c *Config) {
		c.Assistant = assistant.NewGemini(upstream.URL, "test-key", nil)
	})
	user := env.register(t)
	other := env.register(t)

	var session chatSessionBody
	if code := env.call(t, "POST", "/api/chat/sessions", user.Token, nil, &session); code != http.StatusCreated {
		t.Fatalf("expected 201 opening a session, got %d", code)
	}
	if len(session.Messages) != 1 || session.Messages[0].Content != assistant.Greeting {
		t.Fatalf("expected greeting, got %+v", session.Messages)
	}

	var resumed chatSessionBody
	if code := env.call(t, "POST", "/api/chat/sessions", user.Token, nil, &resumed); code != http.StatusOK {
		t.Errorf("expected 200 resuming the session, got %d", code)
	}
	if resumed.ID != session.ID {
		t.Errorf("expected session %d resumed, got %d", session.ID, resumed.ID)
	}

	messages := fmt.Sprintf("/api/chat/sessions/%d/messages", session.ID)
	var reply struct {
		Reply   string          `json:"reply"`
		Session chatSessionBody `json:"session"`
	}
	code := env.call(t, "POST", messages, user.Token, map[string]string{"message": "  How do I sell?  "}, &reply)
	if code != http.StatusOK {
		t.Fatalf("expected 200 sending a message, got %d", code)
	}
	if reply.Reply != "You asked: How do I sell?" {
		t.Errorf("unexpected reply %q", reply.Reply)
	}
	if len(reply.Session.Messages) != 3 {
		t.Errorf("expected greeting plus one exchange, got %d messages", len(reply.Session.Messages))
	}

	tests := []struct {
		name  string
		token string
		path  string
		body  any
		want  int
	}{
		{"empty message", user.Token, messages, map[string]string{"message": "   "}, http.StatusBadRequest},
		{"bad session id", user.Token, "/api/chat/sessions/abc/messages", map[string]string{"message": "hi"}, http.StatusBadRequest},
		{"foreign session", other.Token, messages, map[string]string{"message": "hi"}, http.StatusNotFound},
		{"unknown session", user.Token, "/api/chat/sessions/9999/messages", map[string]string{"message": "hi"}, http.StatusNotFound},
		{"no token", "", messages, map[string]string{"message": "hi"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := env.call(t, "POST", tt.path, tt.token, tt.body, nil); code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, code)
			}
		})
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected rejected messages to stay local, upstream saw %d calls", n)
	}

	status.Store(http.StatusForbidden)
	if code := env.call(t, "POST", messages, user.Token, map[string]string{"message": "still there?"}, nil); code != http.StatusBadGateway {
		t.Errorf("expected 502 on upstream failure, got %d", code)
	}
	status.Store(0)

	var stored chatSessionBody
	if code := env.call(t, "GET", fmt.Sprintf("/api/chat/sessions/%d", session.ID), user.Token, nil, &stored); code != http.StatusOK {
		t.Fatalf("expected 200 reading the session, got %d", code)
	}
	if len(stored.Messages) != 3 {
		t.Errorf("expected failed exchange not stored, got %d messages", len(stored.Messages))
	}

	var closed chatSessionBody
	if code := env.call(t, "POST", fmt.Sprintf("/api/chat/sessions/%d/close", session.ID), user.Token, nil, &closed); code != http.StatusOK {
		t.Fatalf("expected 200 closing the session, got %d", code)
	}
	if closed.Active {
		t.Error("expected closed session to be inactive")
	}
	if code := env.call(t, "POST", messages, user.Token, map[string]string{"message": "hi"}, nil); code != http.StatusBadRequest {
		t.Errorf("expected 400 on a closed session, got %d", code)
	}

	var sessions []chatSessionBody
	if code := env.call(t, "GET", "/api/chat/sessions", user.Token, nil, &sessions); code != http.StatusOK {
		t.Fatalf("expected 200 listing sessions, got %d", code)
	}
	if len(sessions) != 1 || sessions[0].ID != session.ID {
		t.Errorf("expected the one session listed, got %+v", sessions)
	}
}

func TestChatWithoutAssistant(t *testing.T) {
	env := setupTestServer(t)
	user := env.register(t)

	var session chatSessionBody
	if code := env.call(t, "POST", "/api/chat/sessions", user.Token, nil, &session); code != http.StatusCreated {
		t.Fatalf("expected 201 opening a session, got %d", code)
	}
	path := fmt.Sprintf("/api/chat/sessions/%d/messages", session.ID)
	if code := env.call(t, "POST", path, user.Token, map[string]string{"message": "hi"}, nil); code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without an assistant, got %d", code)
	}
}
