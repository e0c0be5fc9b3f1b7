package room

import (
	"io"
	"sync"
	"testing"
	"time"

	"chess-coordinator/internal/game"
	"chess-coordinator/internal/settlement"
	"chess-coordinator/internal/shared"

	"github.com/sirupsen/logrus"
)

type delivery struct {
	members []string
	private bool
	ev      shared.Event
}

// recorder is a Broadcaster that keeps every event it is handed.
type recorder struct {
	mu        sync.Mutex
	delivered []delivery
}

func (r *recorder) Broadcast(_ string, members []string, ev shared.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered = append(r.delivered, delivery{members: append([]string(nil), members...), ev: ev})
}

func (r *recorder) Send(_ string, identity string, ev shared.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered = append(r.delivered, delivery{members: []string{identity}, private: true, ev: ev})
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.delivered)
}

// received lists the actions delivered to identity, in order.
func (r *recorder) received(identity string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, d := range r.delivered {
		for _, m := range d.members {
			if m == identity {
				out = append(out, d.ev.Action)
				break
			}
		}
	}
	return out
}

func (r *recorder) broadcasts() []shared.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []shared.Event
	for _, d := range r.delivered {
		if !d.private {
			out = append(out, d.ev)
		}
	}
	return out
}

func (r *recorder) count(action string) int {
	n := 0
	for _, ev := range r.broadcasts() {
		if ev.Action == action {
			n++
		}
	}
	return n
}

// fakeSettler completes every settlement synchronously with err.
type fakeSettler struct {
	mu   sync.Mutex
	reqs []settlement.Request
	err  error
}

func (f *fakeSettler) Dispatch(req settlement.Request, done func(settlement.Receipt, error)) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	err := f.err
	f.mu.Unlock()
	if err != nil {
		done(settlement.Receipt{}, err)
		return
	}
	done(settlement.Receipt{Accepted: true, Reference: "ref-" + req.ID}, nil)
}

func (f *fakeSettler) requests() []settlement.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]settlement.Request(nil), f.reqs...)
}

// gatedSettler holds every settlement until release is closed.
type gatedSettler struct {
	release chan struct{}
	mu      sync.Mutex
	n       int
}

func (g *gatedSettler) Dispatch(_ settlement.Request, done func(settlement.Receipt, error)) {
	g.mu.Lock()
	g.n++
	g.mu.Unlock()
	go func() {
		<-g.release
		done(settlement.Receipt{Accepted: true}, nil)
	}()
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fixture struct {
	reg     *Registry
	out     *recorder
	settler *fakeSettler
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{out: &recorder{}, settler: &fakeSettler{}}
	if opts.GracePeriod == 0 {
		opts.GracePeriod = time.Minute
	}
	f.reg = NewRegistry(game.NewChessOracle(), f.out, f.settler, opts, quietLog())
	t.Cleanup(f.reg.Close)
	return f
}

// started seats white and black in code and returns the room.
func (f *fixture) started(t *testing.T, code, white, black string) *Room {
	t.Helper()
	r, res, err := f.reg.Join(code, white)
	if err != nil || res.Color != shared.White {
		t.Fatalf("join %s: %v %+v", white, err, res)
	}
	if _, res, err = f.reg.Join(code, black); err != nil || !res.Started {
		t.Fatalf("join %s: %v %+v", black, err, res)
	}
	return r
}

func (f *fixture) play(t *testing.T, code string, moves ...[3]string) {
	t.Helper()
	for _, m := range moves {
		if err := f.reg.Move(code, m[0], game.Move{From: m[1], To: m[2]}); err != nil {
			t.Fatalf("move %v: %v", m, err)
		}
	}
}
