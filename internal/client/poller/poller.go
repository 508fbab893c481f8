// Package poller tracks a verification from the requesting client's side:
// a visible countdown plus periodic status reads until a decision arrives.
package poller

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-verify-nosql/internal/config"
	"github.com/go-verify-nosql/internal/domain"
)

// Degraded describes why the last status read failed.
type Degraded string

const (
	DegradedNone    Degraded = ""
	DegradedNetwork Degraded = "network"
	DegradedGeneric Degraded = "generic"
)

// StatusReader fetches the current status of a verification.
type StatusReader interface {
	ReadStatus(ctx context.Context, verificationID string) (domain.VerificationStatus, error)
}

// Snapshot is the client-visible state.
type Snapshot struct {
	Status    domain.VerificationStatus
	Remaining time.Duration
	Degraded  Degraded
	// Err is the last read error while Degraded is set.
	Err error
}

type Config struct {
	Countdown    time.Duration
	PollInterval time.Duration
	ReadTimeout  time.Duration
}

func ConfigFrom(v config.Verification) Config {
	return Config{Countdown: v.Countdown, PollInterval: v.PollInterval, ReadTimeout: v.ClientReadTimeout}
}

type Option func(*Poller)

// WithOnVerified registers fn to run once, the first time a read returns
// verified. Callbacks run on the polling goroutine and may call Stop.
func WithOnVerified(fn func()) Option { return func(p *Poller) { p.onVerified = fn } }

// WithOnChange registers fn to run after every countdown step and read.
func WithOnChange(fn func(Snapshot)) Option { return func(p *Poller) { p.onChange = fn } }

// Poller is started once and stopped once. All timers belong to one
// goroutine that exits on Stop or on a terminal status.
type Poller struct {
	reader     StatusReader
	id         string
	cfg        Config
	onVerified func()
	onChange   func(Snapshot)

	mu       sync.Mutex
	snap     Snapshot
	started  bool
	verified bool
	cancel   context.CancelFunc
	done     chan struct{}
	// set while the polling goroutine is inside a callback
	inCallback atomic.Bool
}

func New(reader StatusReader, verificationID string, cfg Config, opts ...Option) *Poller {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	p := &Poller{
		reader: reader,
		id:     verificationID,
		cfg:    cfg,
		snap:   Snapshot{Status: domain.VerificationNone},
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start enters pending and begins polling with an immediate read. Calls
// after the first are ignored.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.snap = Snapshot{Status: domain.VerificationPending, Remaining: p.cfg.Countdown}
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	go p.run(ctx)
}

// Stop cancels all timers and waits for the polling goroutine to exit. No
// read starts after Stop returns. Called from a callback, Stop only cancels;
// the goroutine exits when the callback returns.
func (p *Poller) Stop() {
	p.mu.Lock()
	started, cancel := p.started, p.cancel
	p.mu.Unlock()
	if !started {
		return
	}
	cancel()
	if p.inCallback.Load() {
		return
	}
	<-p.done
}

// Done is closed once polling has ended.
func (p *Poller) Done() <-chan struct{} { return p.done }

func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	countdown := time.NewTicker(time.Second)
	defer countdown.Stop()
	poll := time.NewTicker(p.cfg.PollInterval)
	defer poll.Stop()

	if p.read(ctx) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-countdown.C:
			if p.step() {
				// expired: one extra read, nothing written
				countdown.Stop()
				if p.read(ctx) {
					return
				}
			}
		case <-poll.C:
			if p.read(ctx) {
				return
			}
		}
	}
}

// step decrements the countdown and reports whether it just reached zero.
func (p *Poller) step() bool {
	p.mu.Lock()
	if p.snap.Remaining <= 0 {
		p.mu.Unlock()
		return false
	}
	p.snap.Remaining -= time.Second
	if p.snap.Remaining < 0 {
		p.snap.Remaining = 0
	}
	expired := p.snap.Remaining == 0
	snap := p.snap
	p.mu.Unlock()

	p.changed(snap)
	return expired
}

// read performs one status read and reports whether polling should end.
func (p *Poller) read(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	rctx, cancel := context.WithTimeout(ctx, p.cfg.ReadTimeout)
	status, err := p.reader.ReadStatus(rctx, p.id)
	cancel()
	if ctx.Err() != nil {
		return true
	}
	if err == nil && !status.Valid() {
		err = fmt.Errorf("unexpected status %q", status)
	}

	p.mu.Lock()
	if err != nil {
		p.snap.Degraded = classify(err)
		p.snap.Err = err
		snap := p.snap
		p.mu.Unlock()
		p.changed(snap)
		return false
	}
	p.snap.Degraded = DegradedNone
	p.snap.Err = nil
	if status != domain.VerificationNone {
		p.snap.Status = status
	}
	fire := status == domain.VerificationVerified && !p.verified
	if fire {
		p.verified = true
	}
	snap := p.snap
	p.mu.Unlock()

	p.changed(snap)
	if fire && p.onVerified != nil {
		p.callback(p.onVerified)
	}
	return status.IsTerminal()
}

func (p *Poller) changed(s Snapshot) {
	if p.onChange != nil {
		p.callback(func() { p.onChange(s) })
	}
}

func (p *Poller) callback(fn func()) {
	p.inCallback.Store(true)
	defer p.inCallback.Store(false)
	fn()
}

// classify separates connectivity failures from everything else.
func classify(err error) Degraded {
	if errors.Is(err, context.DeadlineExceeded) {
		return DegradedNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return DegradedNetwork
	}
	return DegradedGeneric
}
