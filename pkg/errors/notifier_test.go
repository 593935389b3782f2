package errors

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/logger"
)

type fakeSender struct {
	mu       sync.Mutex
	messages map[string][]string
	err      error
	panics   bool
}

func (s *fakeSender) SendAlert(_ context.Context, channelID, content string) error {
	if s.panics {
		panic("sender exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.messages == nil {
		s.messages = make(map[string][]string)
	}
	s.messages[channelID] = append(s.messages[channelID], content)
	return nil
}

func (s *fakeSender) count(channelID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[channelID])
}

type fakeDM struct {
	fail map[string]bool
}

func (d fakeDM) OpenDM(_ context.Context, userID string) (string, error) {
	if d.fail[userID] {
		return "", errors.New("cannot DM " + userID)
	}
	return "dm-" + userID, nil
}

func TestAlertResolver(t *testing.T) {
	ctx := context.Background()

	configured := NewAlertResolver(AlertConfig{ChannelID: "alerts"})
	target, err := configured.Resolve(ctx)
	if err != nil || target.ChannelID != "alerts" || target.Source != "config" {
		t.Errorf("configured target = %+v, %v", target, err)
	}

	owners := func() []string { return []string{"1", "2"} }
	viaDM := NewAlertResolver(AlertConfig{Owners: owners, DM: fakeDM{fail: map[string]bool{"1": true}}})
	target, err = viaDM.Resolve(ctx)
	if err != nil || target.ChannelID != "dm-2" || target.Source != "owner_dm" {
		t.Errorf("owner DM target = %+v, %v", target, err)
	}

	none := NewAlertResolver(AlertConfig{})
	if _, err := none.Resolve(ctx); !errors.Is(err, ErrNoAlertTarget) {
		t.Errorf("Resolve() error = %v, want ErrNoAlertTarget", err)
	}

	allFail := NewAlertResolver(AlertConfig{Owners: owners, DM: fakeDM{fail: map[string]bool{"1": true, "2": true}}})
	if _, err := allFail.Resolve(ctx); !errors.Is(err, ErrNoAlertTarget) {
		t.Errorf("Resolve() error = %v, want ErrNoAlertTarget", err)
	}

	viaDM.SetChannel("override")
	if target, _ := viaDM.Resolve(ctx); target.ChannelID != "override" {
		t.Errorf("SetChannel not honoured: %+v", target)
	}
}

func TestFormatAlert(t *testing.T) {
	f := NewBuilder(KindCommandInvoke).
		Wrap(errors.New("index out of range")).
		WithCommand(&CommandRef{Name: "ping"}).
		Build()
	f.Timestamp = time.Date(2026, 2, 15, 18, 32, 5, 0, time.UTC)

	trail := []Breadcrumb{{Timestamp: f.Timestamp, Component: "command", Event: "dispatch", Detail: "ping"}}
	msg := FormatAlert(f, Origin{UserID: "7", UserName: "someone", GuildID: "9", Content: "!ping"}, 3, trail)

	for _, want := range []string{
		"❌ **ERROR**: CommandInvokeError",
		"index out of range",
		"Trace ID: `" + f.TraceID + "`",
		"Command: `ping`",
		"someone (7)",
		"Message: !ping",
		"2026-02-15 18:32:05 UTC",
		"Repeated 3 times",
		"command/dispatch: ping",
		"```json",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("alert missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatAlertRespectsLengthLimit(t *testing.T) {
	f := New(KindUnknown, strings.Repeat("é", 3000))
	msg := FormatAlert(f, Origin{Content: strings.Repeat("x", 5000)}, 0, nil)
	if len(msg) > maxAlertLength {
		t.Errorf("alert length = %d, limit %d", len(msg), maxAlertLength)
	}
}

func newTestSupervisor(t *testing.T, sender AlertSender) *Supervisor {
	t.Helper()
	sup, err := NewSupervisor(SupervisorConfig{
		StorePath:       filepath.Join(t.TempDir(), "failures.db"),
		StoreEnabled:    true,
		RateLimitWindow: "1h",
		AlertChannelID:  "alerts",
		Sender:          sender,
		Logger:          logger.Discard(),
	})
	if err != nil {
		t.Fatalf("NewSupervisor() error = %v", err)
	}
	t.Cleanup(func() { sup.Stop() })
	return sup
}

func TestSupervisor_Report(t *testing.T) {
	sender := &fakeSender{}
	sup := newTestSupervisor(t, sender)
	ctx := context.Background()

	sup.Track("command").Event("dispatch", "ping")

	err := NewBuilder(KindCommandInvoke).Wrap(errors.New("boom")).WithCommand(&CommandRef{Name: "ping"}).Build()
	id := sup.Report(ctx, err, Origin{UserID: "7"})
	if id != err.TraceID {
		t.Errorf("Report() = %q, want %q", id, err.TraceID)
	}
	if sender.count("alerts") != 1 {
		t.Fatalf("alerts sent = %d, want 1", sender.count("alerts"))
	}

	// Repeat inside the window: stored, not alerted
	again := NewBuilder(KindCommandInvoke).Wrap(errors.New("boom")).WithCommand(&CommandRef{Name: "ping"}).Build()
	if got := sup.Report(ctx, again, Origin{}); got != err.TraceID {
		t.Errorf("repeat folded under %q, want %q", got, err.TraceID)
	}
	if sender.count("alerts") != 1 {
		t.Errorf("alerts sent = %d, want 1", sender.count("alerts"))
	}

	stored, qerr := sup.Query(ctx, Query{})
	if qerr != nil {
		t.Fatal(qerr)
	}
	if len(stored) != 1 || stored[0].Occurrences != 2 {
		t.Errorf("stored = %+v", stored)
	}

	stats := sup.Stats(ctx)
	if !stats.AlertsEnabled || stats.Store == nil || stats.Store.Total != 1 {
		t.Errorf("Stats = %+v", stats)
	}
}

func TestSupervisor_ForeignErrorAndNil(t *testing.T) {
	sup := newTestSupervisor(t, &fakeSender{})
	ctx := context.Background()

	if id := sup.Report(ctx, nil, Origin{}); id != "" {
		t.Errorf("Report(nil) = %q", id)
	}

	id := sup.Report(ctx, errors.New("plain"), Origin{})
	got, err := sup.Store().Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Kind != KindUnknown || got.Message != "plain" {
		t.Errorf("foreign error stored as %+v", got)
	}
}

func TestSupervisor_SurvivesSenderFailures(t *testing.T) {
	ctx := context.Background()

	failing := newTestSupervisor(t, &fakeSender{err: errors.New("forbidden")})
	if id := failing.Report(ctx, New(KindUnknown, "x"), Origin{}); id == "" {
		t.Error("failed delivery should still return the trace id")
	}

	panicking := newTestSupervisor(t, &fakeSender{panics: true})
	panicking.Report(ctx, New(KindUnknown, "y"), Origin{})
}

func TestSupervisor_Resolve(t *testing.T) {
	sender := &fakeSender{}
	sup := newTestSupervisor(t, sender)
	ctx := context.Background()

	f := New(KindUnknown, "x")
	sup.Report(ctx, f, Origin{})

	if err := sup.Resolve(ctx, f.TraceID, "42"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if err := sup.Resolve(ctx, "tr_nope", "42"); !errors.Is(err, ErrFailureNotFound) {
		t.Errorf("Resolve(unknown) error = %v", err)
	}

	// Sampling state was reset, so the next occurrence alerts again
	sup.Report(ctx, New(KindUnknown, "x"), Origin{})
	if sender.count("alerts") != 2 {
		t.Errorf("alerts sent = %d, want 2", sender.count("alerts"))
	}
}

func TestSupervisor_StartStop(t *testing.T) {
	sup := newTestSupervisor(t, nil)

	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if err := sup.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := sup.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}

	bad, err := NewSupervisor(SupervisorConfig{CleanupSchedule: "not a schedule", Logger: logger.Discard()})
	if err != nil {
		t.Fatal(err)
	}
	if err := bad.Start(context.Background()); err == nil {
		t.Error("invalid cron spec should fail Start")
	}
}

func TestBreadcrumbs(t *testing.T) {
	b := NewBreadcrumbs(3)

	gw := b.Component("gateway")
	if b.Component("gateway") != gw {
		t.Error("Component() should return the same tracker")
	}

	for i := 0; i < 5; i++ {
		gw.Eventf("heartbeat", "seq %d", i)
	}
	recent := gw.Recent(10)
	if len(recent) != 3 {
		t.Fatalf("len = %d, want ring capacity 3", len(recent))
	}
	if recent[0].Detail != "seq 2" || recent[2].Detail != "seq 4" {
		t.Errorf("unexpected order: %+v", recent)
	}

	b.Component("rest").Failure("send", errors.New("403"))
	merged := b.Recent(componentsFor(CategoryTransport), 2)
	if len(merged) != 3 {
		t.Errorf("merged = %d, want 3", len(merged))
	}
	for i := 1; i < len(merged); i++ {
		if merged[i].Timestamp.Before(merged[i-1].Timestamp) {
			t.Error("merged trail not in time order")
		}
	}

	if got := b.Recent([]string{"missing"}, 5); len(got) != 0 {
		t.Errorf("unknown component returned %v", got)
	}
}
