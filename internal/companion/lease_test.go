package companion

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sandeepkv93/companiond/internal/crypto"
	"github.com/sandeepkv93/companiond/internal/model"
	"github.com/sandeepkv93/companiond/internal/storage"
	"github.com/sandeepkv93/companiond/internal/timers"
)

func openSharedStore(t *testing.T, path string) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func storedCounts(t *testing.T, store storage.Store) (int, int) {
	t.Helper()
	var ts []model.Timer
	var as []model.Automation
	if err := storage.LoadJSON(context.Background(), store, timersKey, &ts); err != nil && !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("load timers: %v", err)
	}
	if err := storage.LoadJSON(context.Background(), store, automationsKey, &as); err != nil && !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("load automations: %v", err)
	}
	return len(ts), len(as)
}

func TestSecondWriterOnSharedDatabaseIsRefused(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "companion.db")
	clock := &fakeClock{now: time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)}
	key, _ := crypto.GenerateKey()
	codec, _ := crypto.NewCipher(key)

	daemon, _ := newTestService(t, openSharedStore(t, path), clock, codec)
	if err := daemon.Claim(ctx); err != nil {
		t.Fatalf("daemon claim: %v", err)
	}
	daemon.Load(ctx)
	tea, _ := daemon.CreateTimer(ctx, "tea", model.TimerTypeCountdown, 300, timers.Options{})
	daemon.StartTimer(ctx, tea.ID)

	cli, _ := newTestService(t, openSharedStore(t, path), clock, codec)
	if err := cli.Claim(ctx); !errors.Is(err, storage.ErrLeaseHeld) {
		t.Fatalf("expected ErrLeaseHeld while the daemon runs, got %v", err)
	}

	// A reader loads and flushes without claiming; it must not write back
	// its stale snapshot over the daemon's later changes.
	reader, _ := newTestService(t, openSharedStore(t, path), clock, codec)
	reader.Load(ctx)
	daemon.CreateTimer(ctx, "eggs", model.TimerTypeCountdown, 420, timers.Options{})
	reader.Flush(ctx)
	if n, _ := storedCounts(t, openSharedStore(t, path)); n != 2 {
		t.Fatalf("reader flush overwrote the daemon: %d timers stored, want 2", n)
	}

	clock.now = clock.now.Add(time.Second)
	daemon.Tick(ctx, clock.now, time.Second)
	daemon.Release(ctx)

	if err := cli.Claim(ctx); err != nil {
		t.Fatalf("claim after release: %v", err)
	}
	cli.Load(ctx)
	if _, err := cli.CreateTimer(ctx, "bread", model.TimerTypeCountdown, 900, timers.Options{}); err != nil {
		t.Fatalf("create timer: %v", err)
	}
	if _, err := cli.CreateAutomation(ctx, "standup", model.TriggerDaily, model.TriggerConfig{Time: "09:00"},
		model.Action{Type: model.ActionReminder, Message: "stand up"}); err != nil {
		t.Fatalf("create automation: %v", err)
	}
	cli.Release(ctx)

	fresh, _ := newTestService(t, openSharedStore(t, path), clock, codec)
	fresh.Load(ctx)
	if got := len(fresh.Timers()); got != 3 {
		t.Fatalf("timers after handover: %d, want 3", got)
	}
	if got := len(fresh.Automations()); got != 1 {
		t.Fatalf("automations after handover: %d, want 1", got)
	}
	got, _ := fresh.Timer("tea")
	if got.Remaining != 299 {
		t.Fatalf("daemon tick lost: remaining %d, want 299", got.Remaining)
	}
}

func TestExpiredLeaseFencesTheOldWriter(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "companion.db")
	oldClock := &fakeClock{now: time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)}
	newClock := &fakeClock{now: oldClock.now.Add(leaseTTL + time.Second)}

	stalled, _ := newTestService(t, openSharedStore(t, path), oldClock, nil)
	if err := stalled.Claim(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}

	next, _ := newTestService(t, openSharedStore(t, path), newClock, nil)
	if err := next.Claim(ctx); err != nil {
		t.Fatalf("take over expired lease: %v", err)
	}
	next.CreateTimer(ctx, "mine", model.TimerTypeStopwatch, 0, timers.Options{})

	oldClock.now = newClock.now
	stalled.Tick(ctx, oldClock.now, time.Second)
	if !stalled.LeaseLost() {
		t.Fatal("expected the stalled writer to notice it lost the lease")
	}
	stalled.CreateTimer(ctx, "stale", model.TimerTypeStopwatch, 0, timers.Options{})
	stalled.Release(ctx)

	fresh, _ := newTestService(t, openSharedStore(t, path), newClock, nil)
	fresh.Load(ctx)
	if list := fresh.Timers(); len(list) != 1 || list[0].Name != "mine" {
		t.Fatalf("fenced writer leaked into the store: %#v", list)
	}
}

func TestConcurrentMutationsPersistLatestSnapshot(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	clock := &fakeClock{now: time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, store, clock, nil)

	const n = 40
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(2)
		go func() {
			defer wg.Done()
			svc.CreateTimer(ctx, fmt.Sprintf("t%d", i), model.TimerTypeStopwatch, 0, timers.Options{})
		}()
		go func() {
			defer wg.Done()
			svc.CreateAutomation(ctx, fmt.Sprintf("a%d", i), model.TriggerDaily, model.TriggerConfig{Time: "07:00"},
				model.Action{Type: model.ActionNotify})
		}()
	}
	wg.Wait()

	ts, as := storedCounts(t, store)
	if ts != n || as != n {
		t.Fatalf("stored %d timers and %d automations, want %d each", ts, as, n)
	}
}
