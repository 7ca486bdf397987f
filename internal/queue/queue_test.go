// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/studiosync/internal/breaker"
	"github.com/tomtom215/studiosync/internal/connectivity"
	"github.com/tomtom215/studiosync/internal/retry"
	"github.com/tomtom215/studiosync/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recorder is a RemoteExecutor that records calls and fails the
// operations listed in fail.
type recorder struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (r *recorder) Execute(_ context.Context, op Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var body struct {
		Name string `json:"name"`
	}
	_ = json.Unmarshal(op.Payload, &body)
	r.calls = append(r.calls, body.Name)
	return r.fail[body.Name]
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type item struct {
	Name string `json:"name"`
}

type harness struct {
	q     *Queue
	db    *store.DB
	conn  *connectivity.Manual
	clock *fakeClock
	exec  *recorder
}

func newHarness(t *testing.T, online bool, opts ...Option) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	db := store.New(store.Schema{
		Version: 1,
		Collections: []store.Collection{
			{Name: Collection},
			{Name: "clients"},
			{Name: "bookings"},
		},
	}, store.WithClock(clock.Now))
	if err := db.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{db: db, conn: connectivity.NewManual(online), clock: clock, exec: &recorder{fail: map[string]error{}}}
	q, err := New(db, h.exec, h.conn, append([]Option{WithoutEnqueueReplay()}, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(q.Close)
	h.q = q
	return h
}

func (h *harness) enqueue(t *testing.T, collection, name string) string {
	t.Helper()
	id, err := h.q.Enqueue(context.Background(), KindCreate, collection, item{Name: name})
	if err != nil {
		t.Fatalf("Enqueue(%s) error = %v", name, err)
	}
	h.clock.Advance(time.Millisecond)
	return id
}

func (h *harness) replay(t *testing.T) Summary {
	t.Helper()
	s, err := h.q.ReplayAll(context.Background())
	if err != nil {
		t.Fatalf("ReplayAll() error = %v", err)
	}
	return s
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewRequiresReservedCollection(t *testing.T) {
	db := store.New(store.Schema{Version: 1, Collections: []store.Collection{{Name: "clients"}}})
	if _, err := New(db, &recorder{}, connectivity.NewManual(true)); !errors.Is(err, ErrNoCollection) {
		t.Errorf("New() error = %v, want ErrNoCollection", err)
	}
}

func TestEnqueue(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)

	id, err := h.q.Enqueue(ctx, KindUpdate, "clients", item{Name: "ana"}, WithAuth(map[string]string{"user": "u1"}))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.Version() != 7 {
		t.Errorf("id %q is not a UUIDv7: %v", id, err)
	}

	ops, err := h.q.Pending(ctx)
	if err != nil || len(ops) != 1 {
		t.Fatalf("Pending() = %v, %v", ops, err)
	}
	op := ops[0]
	if op.Kind != KindUpdate || op.Collection != "clients" || op.Auth["user"] != "u1" || op.Attempts != 0 {
		t.Errorf("stored operation = %+v", op)
	}
	if !op.EnqueuedAt.Equal(h.clock.Now()) {
		t.Errorf("EnqueuedAt = %v, want %v", op.EnqueuedAt, h.clock.Now())
	}

	invalid := []struct {
		name       string
		kind       Kind
		collection string
	}{
		{"unknown kind", Kind("PATCH"), "clients"},
		{"empty collection", KindCreate, ""},
		{"reserved collection", KindCreate, Collection},
		{"malformed collection", KindCreate, "Clients/1"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.q.Enqueue(ctx, tt.kind, tt.collection, item{}); err == nil {
				t.Error("Enqueue() expected validation error")
			}
		})
	}
	if n, _ := h.q.Len(ctx); n != 1 {
		t.Errorf("Len() = %d, want 1", n)
	}
}

func TestReplayAllOfflineIsNoop(t *testing.T) {
	h := newHarness(t, false)
	h.enqueue(t, "clients", "a1")

	s := h.replay(t)
	if !s.Empty() || len(h.exec.Calls()) != 0 {
		t.Errorf("offline replay = %+v, calls = %v", s, h.exec.Calls())
	}
}

func TestReplayAllOrdersPerCollection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	h.enqueue(t, "clients", "a1")
	h.enqueue(t, "bookings", "b1")
	h.enqueue(t, "clients", "a2")
	h.enqueue(t, "bookings", "b2")

	s := h.replay(t)
	if s.Succeeded != 4 || s.Failed != 0 || s.Deferred != 0 {
		t.Errorf("Summary = %+v", s)
	}
	if want := []string{"a1", "a2", "b1", "b2"}; !equal(h.exec.Calls(), want) {
		t.Errorf("calls = %v, want %v", h.exec.Calls(), want)
	}
	if n, _ := h.q.Len(ctx); n != 0 {
		t.Errorf("Len() = %d after successful replay", n)
	}
}

func TestReplayFailureDefersRestOfCollection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	h.exec.fail["a1"] = errors.New("503")
	h.enqueue(t, "clients", "a1")
	h.enqueue(t, "clients", "a2")
	h.enqueue(t, "bookings", "b1")

	s := h.replay(t)
	if s.Succeeded != 1 || s.Failed != 1 || s.Deferred != 1 {
		t.Errorf("Summary = %+v, want 1 succeeded, 1 failed, 1 deferred", s)
	}
	if want := []string{"a1", "b1"}; !equal(h.exec.Calls(), want) {
		t.Errorf("calls = %v, want %v", h.exec.Calls(), want)
	}

	ops, _ := h.q.Pending(ctx)
	if len(ops) != 2 {
		t.Fatalf("pending = %d, want 2", len(ops))
	}
	if ops[0].Attempts != 1 || ops[0].LastError != "503" || !ops[0].LastAttemptAt.Equal(h.clock.Now()) {
		t.Errorf("failed op = %+v", ops[0])
	}
	if ops[1].Attempts != 0 {
		t.Errorf("deferred op attempts = %d, want 0", ops[1].Attempts)
	}
}

func TestReplayHonorsBackoff(t *testing.T) {
	h := newHarness(t, true)
	h.exec.fail["a1"] = errors.New("503")
	h.enqueue(t, "clients", "a1")
	h.replay(t)

	s := h.replay(t)
	if s.Deferred != 1 || len(h.exec.Calls()) != 1 {
		t.Errorf("replay before backoff = %+v, calls = %v", s, h.exec.Calls())
	}

	h.clock.Advance(time.Second)
	delete(h.exec.fail, "a1")
	s = h.replay(t)
	if s.Succeeded != 1 {
		t.Errorf("replay after backoff = %+v", s)
	}
}

func TestReplayTerminalAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	var reported []Summary
	h := newHarness(t, true, WithReporter(ReporterFunc(func(_ context.Context, s Summary) {
		reported = append(reported, s)
	})))
	h.exec.fail["a1"] = errors.New("500")
	h.enqueue(t, "clients", "a1")

	h.replay(t)
	h.clock.Advance(time.Second)
	h.replay(t)
	h.clock.Advance(2 * time.Second)
	s := h.replay(t)

	if len(s.Terminal) != 1 {
		t.Fatalf("Summary = %+v, want one terminal failure", s)
	}
	tf := s.Terminal[0]
	if tf.Operation.Attempts != 3 || tf.Error != "500" {
		t.Errorf("terminal failure = %+v", tf)
	}
	if n, _ := h.q.Len(ctx); n != 0 {
		t.Errorf("Len() = %d, terminal op should be removed", n)
	}
	if len(reported) != 3 || len(reported[2].Terminal) != 1 {
		t.Errorf("reported = %+v", reported)
	}

	st, err := h.q.Stats(ctx)
	if err != nil || st.TotalTerminal != 1 || st.Pending != 0 {
		t.Errorf("Stats() = %+v, %v", st, err)
	}
}

func TestReplayPermanentErrorIsTerminal(t *testing.T) {
	h := newHarness(t, true)
	h.exec.fail["a1"] = retry.Permanent(errors.New("422 unprocessable"))
	h.enqueue(t, "clients", "a1")
	h.enqueue(t, "clients", "a2")

	s := h.replay(t)
	if len(s.Terminal) != 1 || s.Deferred != 1 {
		t.Errorf("Summary = %+v", s)
	}
	if s.Terminal[0].Operation.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", s.Terminal[0].Operation.Attempts)
	}
}

func TestReplayBreakerRejectionKeepsAttempts(t *testing.T) {
	ctx := context.Background()
	b := breaker.New(breaker.Settings{Name: "queue-test", ConsecutiveFailures: 1, Timeout: time.Hour})
	h := newHarness(t, true, WithBreaker(b))
	h.exec.fail["a1"] = errors.New("503")
	h.enqueue(t, "clients", "a1")

	h.replay(t)
	h.clock.Advance(time.Minute)
	s := h.replay(t)

	if s.Deferred != 1 || s.Failed != 0 {
		t.Errorf("Summary = %+v, want 1 deferred", s)
	}
	if len(h.exec.Calls()) != 1 {
		t.Errorf("executor called through open breaker: %v", h.exec.Calls())
	}
	ops, _ := h.q.Pending(ctx)
	if len(ops) != 1 || ops[0].Attempts != 1 {
		t.Errorf("pending = %+v, want attempts unchanged at 1", ops)
	}
}

func TestReplayAllRejectsConcurrentPass(t *testing.T) {
	h := newHarness(t, true)
	started := make(chan struct{})
	release := make(chan struct{})
	h.q.exec = ExecutorFunc(func(context.Context, Operation) error {
		close(started)
		<-release
		return nil
	})
	h.enqueue(t, "clients", "a1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.q.ReplayAll(context.Background())
	}()
	<-started

	if _, err := h.q.ReplayAll(context.Background()); !errors.Is(err, ErrReplayInProgress) {
		t.Errorf("concurrent ReplayAll() error = %v, want ErrReplayInProgress", err)
	}
	close(release)
	<-done
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEnqueueOnlineTriggersReplay(t *testing.T) {
	h := newHarness(t, true)
	h.q.autoKick = true
	h.enqueue(t, "clients", "a1")

	waitFor(t, func() bool {
		n, _ := h.q.Len(context.Background())
		return n == 0
	})
	if !equal(h.exec.Calls(), []string{"a1"}) {
		t.Errorf("calls = %v", h.exec.Calls())
	}
}

func TestReplayLoopRunsOnReconnect(t *testing.T) {
	h := newHarness(t, false)
	loop := NewReplayLoop(h.q, time.Hour)
	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !loop.IsRunning() {
		t.Fatal("IsRunning() = false after Start")
	}
	h.enqueue(t, "clients", "a1")

	h.conn.Set(true)
	waitFor(t, func() bool { return len(h.exec.Calls()) == 1 })

	loop.Stop()
	if loop.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	loop.Stop()
}

func TestReplayKeepsEnqueueOrderWhenClockStepsBack(t *testing.T) {
	h := newHarness(t, true)
	h.enqueue(t, "clients", "create")
	h.clock.Advance(-2 * time.Second)
	h.enqueue(t, "clients", "update")

	h.replay(t)
	if want := []string{"create", "update"}; !equal(h.exec.Calls(), want) {
		t.Errorf("calls = %v, want %v", h.exec.Calls(), want)
	}
}

func TestTerminalFailureOmitsAuth(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	var seen map[string]string
	h.q.exec = ExecutorFunc(func(_ context.Context, op Operation) error {
		seen = op.Auth
		return retry.Permanent(errors.New("403"))
	})
	if _, err := h.q.Enqueue(ctx, KindCreate, "clients", item{Name: "a1"}, WithAuth(map[string]string{"token": "secret"})); err != nil {
		t.Fatal(err)
	}

	s := h.replay(t)
	if seen["token"] != "secret" {
		t.Errorf("executor auth = %v, want token", seen)
	}
	if len(s.Terminal) != 1 {
		t.Fatalf("Terminal = %+v, want 1", s.Terminal)
	}
	if s.Terminal[0].Operation.Auth != nil {
		t.Errorf("Terminal[0].Operation.Auth = %v, want nil", s.Terminal[0].Operation.Auth)
	}
	st, err := h.q.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.LastSummary.Terminal[0].Operation.Auth != nil {
		t.Errorf("LastSummary auth = %v, want nil", st.LastSummary.Terminal[0].Operation.Auth)
	}
}

func TestRerunAfterPassFinishedStartsReplay(t *testing.T) {
	h := newHarness(t, true)
	h.enqueue(t, "clients", "a1")

	h.q.replaying.Store(true)
	h.q.requestRerun()
	if !h.q.rerun.Load() {
		t.Fatal("rerun not recorded while a pass runs")
	}
	if len(h.exec.Calls()) != 0 {
		t.Fatalf("calls = %v while a pass runs", h.exec.Calls())
	}

	// The running pass ended before the request landed.
	h.q.replaying.Store(false)
	h.q.rerun.Store(false)
	h.q.requestRerun()
	waitFor(t, func() bool { return len(h.exec.Calls()) == 1 })
	if h.q.rerun.Load() {
		t.Error("rerun still set after the pass was started")
	}
}
