package telegram

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"digestbot/internal/transport"
	logx "digestbot/pkg/logx"
)

func TestSplitText(t *testing.T) {
	t.Parallel()
	if got := splitText("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("splitText(short) = %q", got)
	}

	s := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitText(s, 10)
	if len(got) != 2 || got[0] != "aaaaaa\n" || got[1] != "bbbbbb" {
		t.Fatalf("splitText = %q", got)
	}

	long := strings.Repeat("x", 25)
	got = splitText(long, 10)
	if len(got) != 3 || strings.Join(got, "") != long {
		t.Fatalf("splitText(no newline) = %q", got)
	}
}

func TestSendPostsMessage(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/bottok/sendMessage") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":-1001,"type":"group"}}}`)
	}))
	defer srv.Close()

	s, err := New(Config{Token: "tok", URL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Send(context.Background(), "-1001", "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 1 || !strings.Contains(bodies[0], `"chat_id":"-1001"`) || !strings.Contains(bodies[0], "hello") {
		t.Fatalf("unexpected request bodies %q", bodies)
	}
}

func TestSendRejectsBadDestination(t *testing.T) {
	s, err := New(Config{Token: "tok", URL: "http://127.0.0.1:1"}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Send(context.Background(), "", "x"); !errors.Is(err, transport.ErrNoDestination) {
		t.Fatalf("expected ErrNoDestination, got %v", err)
	}
	if err := s.Send(context.Background(), "C123", "x"); err == nil {
		t.Fatal("expected invalid chat id error")
	}
	if _, err := New(Config{}, logx.Nop()); err == nil {
		t.Fatal("expected empty token error")
	}
}
