package room

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"chess-coordinator/internal/game"
	"chess-coordinator/internal/shared"

	"github.com/sirupsen/logrus"
)

type Options struct {
	ReconnectWindow time.Duration
	GracePeriod     time.Duration
	SweepInterval   time.Duration
	MaxRooms        int
}

// Registry owns every live Room. Lookups and create-if-absent are guarded by
// one mutex; lock order is always registry then room.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room

	oracle  game.Oracle
	out     Broadcaster
	settler Settler
	opts    Options
	log     *logrus.Entry
	now     func() time.Time
}

func NewRegistry(oracle game.Oracle, out Broadcaster, settler Settler, opts Options, log *logrus.Entry) *Registry {
	if opts.ReconnectWindow <= 0 {
		opts.ReconnectWindow = 30 * time.Second
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 15 * time.Second
	}
	return &Registry{
		rooms:   make(map[string]*Room),
		oracle:  oracle,
		out:     out,
		settler: settler,
		opts:    opts,
		log:     log.WithField("component", "registry"),
		now:     time.Now,
	}
}

func (g *Registry) Get(code string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[shared.NormalizeCode(code)]
	return r, ok
}

func (g *Registry) getOrCreate(code string) (*Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.rooms[code]; ok {
		return r, nil
	}
	if g.opts.MaxRooms > 0 && len(g.rooms) >= g.opts.MaxRooms {
		return nil, ErrCapacity
	}
	r := newRoom(code, g.oracle, g.out, g.settler, g.opts.ReconnectWindow, g.log, g.now)
	g.rooms[code] = r
	g.log.WithField("room", code).Debug("room created")
	return r, nil
}

// Join seats identity in the room with the given code, creating the room on
// first use. A join that races with reclamation retries against a fresh room.
func (g *Registry) Join(code, identity string) (*Room, JoinResult, error) {
	code = shared.NormalizeCode(code)
	if code == "" {
		return nil, JoinResult{}, ErrUnknownRoom
	}
	for {
		r, err := g.getOrCreate(code)
		if err != nil {
			return nil, JoinResult{}, err
		}
		res, err := r.Join(identity)
		if errors.Is(err, errRetired) {
			continue
		}
		return r, res, err
	}
}

func (g *Registry) Move(code, identity string, mv game.Move) error {
	r, ok := g.Get(code)
	if !ok {
		return ErrUnknownRoom
	}
	return r.Move(identity, mv)
}

func (g *Registry) Leave(code, identity string, cause LeaveCause) error {
	r, ok := g.Get(code)
	if !ok {
		return ErrUnknownRoom
	}
	return r.Leave(identity, cause)
}

// Sweep removes rooms that are empty, have nothing in flight and have been
// inactive for the grace period. It is safe to call concurrently with joins.
func (g *Registry) Sweep(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for code, r := range g.rooms {
		if r.retireIfIdle(now, g.opts.GracePeriod) {
			delete(g.rooms, code)
			removed++
		}
	}
	if removed > 0 {
		g.log.WithFields(logrus.Fields{"removed": removed, "live": len(g.rooms)}).Info("reclaimed idle rooms")
	}
	return removed
}

// Run sweeps on the configured interval until ctx is done.
func (g *Registry) Run(ctx context.Context) error {
	t := time.NewTicker(g.opts.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			g.Sweep(now)
		}
	}
}

// Close stops every pending reconnection timer.
func (g *Registry) Close() {
	g.mu.Lock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.mu.Unlock()

	for _, r := range rooms {
		r.close()
	}
}

func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

func (g *Registry) Summaries() []Summary {
	g.mu.Lock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.mu.Unlock()

	out := make([]Summary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
