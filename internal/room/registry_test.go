package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"chess-coordinator/internal/game"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ConcurrentJoinsCreateOneRoom(t *testing.T) {
	f := newFixture(t, Options{})

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		seated int
		full   int
		rooms  = map[*Room]struct{}{}
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, _, err := f.reg.Join("busy", fmt.Sprintf("player-%d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				seated++
				rooms[r] = struct{}{}
			case errors.Is(err, ErrRoomFull):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 2, seated)
	assert.Equal(t, 14, full)
	assert.Len(t, rooms, 1)
	assert.Equal(t, 1, f.reg.Len())
}

func TestRegistry_CodesAreNormalized(t *testing.T) {
	f := newFixture(t, Options{})
	r, _, err := f.reg.Join("  ab12 ", "alice")
	require.NoError(t, err)

	got, ok := f.reg.Get("AB12")
	require.True(t, ok)
	assert.Same(t, r, got)

	_, _, err = f.reg.Join("", "alice")
	assert.ErrorIs(t, err, ErrUnknownRoom)
}

func TestRegistry_UnknownRoom(t *testing.T) {
	f := newFixture(t, Options{})
	assert.ErrorIs(t, f.reg.Move("nope", "alice", game.Move{From: "e2", To: "e4"}), ErrUnknownRoom)
	assert.ErrorIs(t, f.reg.Leave("nope", "alice", CauseResign), ErrUnknownRoom)
}

func TestRegistry_CapacityLeavesExistingRoomsAlone(t *testing.T) {
	f := newFixture(t, Options{MaxRooms: 2})
	f.started(t, "a", "alice", "bob")
	_, _, err := f.reg.Join("b", "carol")
	require.NoError(t, err)

	_, _, err = f.reg.Join("c", "dave")
	assert.ErrorIs(t, err, ErrCapacity)
	assert.Equal(t, 2, f.reg.Len())

	// joining an existing room still works at capacity
	_, _, err = f.reg.Join("b", "erin")
	assert.NoError(t, err)
	f.play(t, "a", [3]string{"alice", "e2", "e4"})
}

func TestRegistry_SweepReclaimsIdleRooms(t *testing.T) {
	f := newFixture(t, Options{GracePeriod: time.Minute})
	_, _, err := f.reg.Join("idle", "alice")
	require.NoError(t, err)
	f.started(t, "live", "bob", "carol")

	assert.Equal(t, 0, f.reg.Sweep(time.Now().Add(time.Hour)), "occupied rooms stay")

	require.NoError(t, f.reg.Leave("idle", "alice", CauseDisconnect))
	assert.Equal(t, 0, f.reg.Sweep(time.Now()), "grace period not elapsed")
	assert.Equal(t, 1, f.reg.Sweep(time.Now().Add(2*time.Minute)))

	_, ok := f.reg.Get("idle")
	assert.False(t, ok)
	_, ok = f.reg.Get("live")
	assert.True(t, ok)
	assert.Equal(t, 1, f.reg.Len())
}

func TestRegistry_SweepKeepsRoomsWithPendingWindow(t *testing.T) {
	f := newFixture(t, Options{ReconnectWindow: time.Hour})
	f.started(t, "hold", "alice", "bob")
	require.NoError(t, f.reg.Leave("hold", "alice", CauseDisconnect))
	require.NoError(t, f.reg.Leave("hold", "bob", CauseDisconnect))

	assert.Equal(t, 0, f.reg.Sweep(time.Now().Add(24*time.Hour)))
}

func TestRegistry_SweepWaitsForInFlightSettlement(t *testing.T) {
	gate := &gatedSettler{release: make(chan struct{})}
	reg := NewRegistry(game.NewChessOracle(), &recorder{}, gate, Options{GracePeriod: time.Millisecond}, quietLog())
	t.Cleanup(reg.Close)

	_, _, err := reg.Join("pay", "alice")
	require.NoError(t, err)
	_, _, err = reg.Join("pay", "bob")
	require.NoError(t, err)
	require.NoError(t, reg.Leave("pay", "alice", CauseResign))
	require.NoError(t, reg.Leave("pay", "bob", CauseDisconnect))

	later := time.Now().Add(time.Hour)
	assert.Equal(t, 0, reg.Sweep(later), "settlement still in flight")

	close(gate.release)
	assert.Eventually(t, func() bool { return reg.Sweep(later) == 1 }, time.Second, 5*time.Millisecond)
}

func TestRegistry_JoinAfterSweepGetsFreshRoom(t *testing.T) {
	f := newFixture(t, Options{})
	old, _, err := f.reg.Join("again", "alice")
	require.NoError(t, err)
	require.NoError(t, f.reg.Leave("again", "alice", CauseDisconnect))
	require.Equal(t, 1, f.reg.Sweep(time.Now().Add(time.Hour)))

	// a retired room refuses joins that still hold a stale pointer
	_, err = old.Join("alice")
	assert.ErrorIs(t, err, errRetired)

	fresh, res, err := f.reg.Join("again", "alice")
	require.NoError(t, err)
	assert.NotSame(t, old, fresh)
	assert.Zero(t, fresh.Snapshot().Ply)
	assert.False(t, res.Resumed)
}

func TestRegistry_SweepRacingJoinNeverLosesPlayer(t *testing.T) {
	f := newFixture(t, Options{GracePeriod: time.Nanosecond})
	for i := 0; i < 100; i++ {
		code := fmt.Sprintf("r%d", i)
		_, _, err := f.reg.Join(code, "alice")
		require.NoError(t, err)
		require.NoError(t, f.reg.Leave(code, "alice", CauseDisconnect))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); f.reg.Sweep(time.Now().Add(time.Second)) }()
		var joined *Room
		go func() {
			defer wg.Done()
			r, _, err := f.reg.Join(code, "bob")
			assert.NoError(t, err)
			joined = r
		}()
		wg.Wait()

		live, ok := f.reg.Get(code)
		require.True(t, ok, "room %s must exist after a successful join", code)
		assert.Same(t, joined, live)
	}
}

func TestRegistry_RunStopsWithContext(t *testing.T) {
	f := newFixture(t, Options{SweepInterval: time.Millisecond, GracePeriod: time.Nanosecond})
	_, _, err := f.reg.Join("tick", "alice")
	require.NoError(t, err)
	require.NoError(t, f.reg.Leave("tick", "alice", CauseDisconnect))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.reg.Run(ctx) }()

	assert.Eventually(t, func() bool { return f.reg.Len() == 0 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRegistry_SummariesAreSorted(t *testing.T) {
	f := newFixture(t, Options{})
	for _, code := range []string{"zz", "aa", "mm"} {
		_, _, err := f.reg.Join(code, "alice")
		require.NoError(t, err)
	}
	var codes []string
	for _, s := range f.reg.Summaries() {
		codes = append(codes, s.Code)
	}
	assert.Equal(t, []string{"AA", "MM", "ZZ"}, codes)
}
