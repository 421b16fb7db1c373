package pacing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Class selects which delay applies to a remote call
type Class int

const (
	// Asset separates consecutive asset downloads
	Asset Class = iota
	// Account separates consecutive accounts
	Account
	// Metadata separates profile and login requests
	Metadata
)

func (c Class) String() string {
	switch c {
	case Asset:
		return "asset"
	case Account:
		return "account"
	case Metadata:
		return "metadata"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Pacer inserts delays between operations. Callers pair every successful
// Wait with a Done once the operation has finished.
type Pacer interface {
	// Wait blocks until an operation of class may start
	Wait(ctx context.Context, class Class) error
	// Done marks the end of an operation of class
	Done(class Class)
}

// Config holds the per-class delays
type Config struct {
	AssetDelay    time.Duration
	AccountDelay  time.Duration
	MetadataDelay time.Duration
	// RequestsPerMinute caps all remote calls together; 0 disables the cap
	RequestsPerMinute int
}

// gate enforces one class's delay. last is the later of the most recent
// start and the most recent finish.
type gate struct {
	delay time.Duration
	turn  chan struct{}

	mu   sync.Mutex
	last time.Time
}

func newGate(delay time.Duration) *gate {
	return &gate{delay: delay, turn: make(chan struct{}, 1)}
}

func (g *gate) mark(now time.Time) {
	g.mu.Lock()
	if now.After(g.last) {
		g.last = now
	}
	g.mu.Unlock()
}

func (g *gate) ready(now time.Time) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last.IsZero() {
		return 0
	}
	return g.last.Add(g.delay).Sub(now)
}

func (g *gate) wait(ctx context.Context) error {
	select {
	case g.turn <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-g.turn }()

	// a Done arriving while we sleep pushes the deadline back
	for {
		remaining := g.ready(time.Now())
		if remaining <= 0 {
			break
		}
		timer := time.NewTimer(remaining)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	g.mark(time.Now())
	return nil
}

// Policy sleeps the configured delay between operations of each class. The
// delay is counted from the end of the previous operation, so a slow
// download or a long account never eats into the pause. The first
// operation of a class never waits.
type Policy struct {
	gates  map[Class]*gate
	global *rate.Limiter
}

// New creates a Policy. A zero delay disables that class.
func New(cfg Config) *Policy {
	p := &Policy{gates: make(map[Class]*gate)}
	for class, delay := range map[Class]time.Duration{
		Asset:    cfg.AssetDelay,
		Account:  cfg.AccountDelay,
		Metadata: cfg.MetadataDelay,
	} {
		if delay > 0 {
			p.gates[class] = newGate(delay)
		}
	}
	if cfg.RequestsPerMinute > 0 {
		p.global = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return p
}

// Nop returns a Policy that never waits
func Nop() *Policy {
	return New(Config{})
}

// Wait blocks until an operation of class may start or ctx is done. The
// Account class marks an account boundary and does not count against the
// global cap.
func (p *Policy) Wait(ctx context.Context, class Class) error {
	if g, ok := p.gates[class]; ok {
		if err := g.wait(ctx); err != nil {
			return fmt.Errorf("pacing %s: %w", class, err)
		}
	}
	if p.global != nil && class != Account {
		if err := p.global.Wait(ctx); err != nil {
			return fmt.Errorf("pacing global budget: %w", err)
		}
	}
	return ctx.Err()
}

// Done records that an operation of class finished; the next Wait of that
// class sleeps the full delay from now
func (p *Policy) Done(class Class) {
	if g, ok := p.gates[class]; ok {
		g.mark(time.Now())
	}
}

// Delay returns the configured spacing of a class, 0 when disabled
func (p *Policy) Delay(class Class) time.Duration {
	if g, ok := p.gates[class]; ok {
		return g.delay
	}
	return 0
}
