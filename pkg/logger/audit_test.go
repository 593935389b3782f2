package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
)

func setupAuditLogger(t *testing.T) (*AuditLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	base, err := New(Config{Level: "info", Format: "json", Writer: &buf, Component: "test"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return NewAuditLogger(base), &buf
}

func parseAudit(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse JSON output: %v", err)
	}
	return entry
}

func TestLogExtension(t *testing.T) {
	tests := []struct {
		name   string
		event  AuditEventType
		err    error
		wantOK bool
	}{
		{"load ok", ExtensionLoad, nil, true},
		{"unload failed", ExtensionUnload, errors.New("not loaded"), false},
		{"reload ok", ExtensionReload, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			al, buf := setupAuditLogger(t)
			al.LogExtension(context.Background(), tt.event, "42", "cogs.chat", tt.err)

			entry := parseAudit(t, buf)
			if entry["action"] != string(tt.event) {
				t.Errorf("action = %v, want %s", entry["action"], tt.event)
			}
			if entry["component"] != "audit" {
				t.Errorf("component = %v, want audit", entry["component"])
			}
			if entry["ok"] != tt.wantOK {
				t.Errorf("ok = %v, want %v", entry["ok"], tt.wantOK)
			}
			if tt.err != nil && entry["error"] != tt.err.Error() {
				t.Errorf("error = %v, want %v", entry["error"], tt.err)
			}
		})
	}
}

func TestLogEvalOmitsCode(t *testing.T) {
	al, buf := setupAuditLogger(t)
	al.LogEval(context.Background(), "42", len("secret := 1"), nil)

	if strings.Contains(buf.String(), "secret") {
		t.Error("eval audit record leaked the source code")
	}
	entry := parseAudit(t, buf)
	if entry["code_bytes"] != float64(11) {
		t.Errorf("code_bytes = %v, want 11", entry["code_bytes"])
	}
}

func TestLogPresenceAndLifecycle(t *testing.T) {
	al, buf := setupAuditLogger(t)

	al.LogPresence(context.Background(), "42", "watching", "you")
	entry := parseAudit(t, buf)
	if entry["activity"] != "watching" || entry["text"] != "you" {
		t.Errorf("unexpected presence entry: %v", entry)
	}

	buf.Reset()
	al.LogLifecycle(context.Background(), BotRestart, "42")
	entry = parseAudit(t, buf)
	if entry["action"] != string(BotRestart) {
		t.Errorf("action = %v, want %s", entry["action"], BotRestart)
	}

	buf.Reset()
	al.LogAccessDenied(context.Background(), "sudo eval", "7")
	entry = parseAudit(t, buf)
	if entry["command"] != "sudo eval" {
		t.Errorf("command = %v", entry["command"])
	}
}

func TestConcurrentAuditLogging(t *testing.T) {
	var buf safeBuffer
	base, _ := New(Config{Level: "info", Format: "json", Writer: &buf})
	al := NewAuditLogger(base)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			al.LogLifecycle(context.Background(), BotShutdown, "42")
		}()
	}
	wg.Wait()

	if got := strings.Count(buf.String(), "\n"); got != 20 {
		t.Errorf("got %d records, want 20", got)
	}
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *safeBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *safeBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}
