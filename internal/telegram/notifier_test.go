package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestSendProxiesFromFile(t *testing.T) {
	var (
		mu    sync.Mutex
		texts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			http.NotFound(w, r)
			return
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["chat_id"] != "42" {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		mu.Lock()
		texts = append(texts, body["text"])
		mu.Unlock()
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "alive.txt")
	long := strings.Repeat("x", 3990)
	if err := os.WriteFile(path, []byte("ss://a\n\n"+long+"\ntrojan://b\n"), 0644); err != nil {
		t.Fatal(err)
	}

	n := NewNotifier("TOKEN", "42")
	n.apiBase = srv.URL

	sent, err := n.SendProxiesFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("SendProxiesFromFile: %v", err)
	}
	if sent != 2 || len(texts) != 2 {
		t.Fatalf("sent %d messages (%d received), want 2", sent, len(texts))
	}
	if texts[0] != "ss://a\n"+long {
		t.Errorf("first message = %.40q", texts[0])
	}
	if texts[1] != "trojan://b" {
		t.Errorf("second message = %q", texts[1])
	}
}

func TestSendMessageAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	n := NewNotifier("T", "1")
	n.apiBase = srv.URL
	if err := n.SendMessage(context.Background(), "hi"); err == nil {
		t.Error("expected error for 401")
	}
}
