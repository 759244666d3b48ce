package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

// Common errors.
var (
	// ErrAlreadyShutdown indicates shutdown was already initiated.
	ErrAlreadyShutdown = errors.New("shutdown already initiated")

	// ErrTimeout indicates shutdown did not complete within the timeout.
	ErrTimeout = errors.New("shutdown timeout exceeded")

	// ErrHandlerFailed indicates one or more handlers failed during shutdown.
	ErrHandlerFailed = errors.New("one or more handlers failed")
)

// Standard phases for the annotation daemon. The HTTP server drains
// before the event bus disconnects, and the stores close last so every
// in-flight request can still commit.
const (
	PhaseServer = 10
	PhaseBus    = 20
	PhaseStores = 30
)

// Handler is implemented by components that need graceful shutdown. The
// context is cancelled when the shutdown timeout is reached.
type Handler interface {
	OnShutdown(ctx context.Context) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context) error

// OnShutdown implements Handler.
func (f HandlerFunc) OnShutdown(ctx context.Context) error {
	return f(ctx)
}

type registration struct {
	name    string
	handler Handler
	phase   int
}

// Result records one handler's shutdown outcome.
type Result struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// Coordinator runs registered handlers in phase order on shutdown.
// Handlers in the same phase run concurrently; lower phases run first.
type Coordinator struct {
	timeout    time.Duration
	onProgress func(Result)

	mu       sync.Mutex
	handlers []registration

	once       sync.Once
	done       chan struct{}
	err        error
	signalChan chan os.Signal
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithTimeout sets the default shutdown timeout. Default is 30 seconds.
func WithTimeout(timeout time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.timeout = timeout }
}

// WithProgress sets a callback invoked as each handler completes.
func WithProgress(fn func(Result)) CoordinatorOption {
	return func(c *Coordinator) { c.onProgress = fn }
}

// NewCoordinator creates a shutdown coordinator.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		timeout:    30 * time.Second,
		done:       make(chan struct{}),
		signalChan: make(chan os.Signal, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a handler in the given phase.
func (c *Coordinator) Register(name string, handler Handler, phase int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, registration{name: name, handler: handler, phase: phase})
}

// RegisterFunc adds a function handler in the given phase.
func (c *Coordinator) RegisterFunc(name string, fn func(ctx context.Context) error, phase int) {
	c.Register(name, HandlerFunc(fn), phase)
}

// HandleSignals initiates shutdown on SIGTERM or SIGINT.
func (c *Coordinator) HandleSignals() {
	signal.Notify(c.signalChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-c.signalChan
		_ = c.ShutdownWithTimeout(c.timeout)
	}()
}

// Trigger initiates shutdown as if a signal had arrived.
func (c *Coordinator) Trigger() {
	select {
	case c.signalChan <- syscall.SIGTERM:
	default:
	}
}

// Shutdown runs all handlers in phase order. Safe to call more than
// once; later calls return the first shutdown's error.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	first := false
	c.once.Do(func() {
		first = true
		c.err = c.run(ctx)
		close(c.done)
	})
	if first {
		return c.err
	}

	select {
	case <-c.done:
		return c.err
	default:
		return ErrAlreadyShutdown
	}
}

// ShutdownWithTimeout runs Shutdown bounded by the given timeout, or the
// coordinator's default if zero.
func (c *Coordinator) ShutdownWithTimeout(timeout time.Duration) error {
	if timeout == 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// Done is closed when shutdown has completed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Err returns the shutdown error. Only valid after Done is closed.
func (c *Coordinator) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Coordinator) run(ctx context.Context) error {
	c.mu.Lock()
	handlers := make([]registration, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	byPhase := make(map[int][]registration)
	for _, reg := range handlers {
		byPhase[reg.phase] = append(byPhase[reg.phase], reg)
	}
	phases := make([]int, 0, len(byPhase))
	for phase := range byPhase {
		phases = append(phases, phase)
	}
	sort.Ints(phases)

	var failed bool
	for _, phase := range phases {
		select {
		case <-ctx.Done():
			return ErrTimeout
		default:
		}

		for _, res := range c.runPhase(ctx, byPhase[phase]) {
			if res.Err != nil {
				failed = true
			}
			if c.onProgress != nil {
				c.onProgress(res)
			}
		}
	}

	if failed {
		return ErrHandlerFailed
	}
	return nil
}

// runPhase runs every handler in the phase concurrently and waits.
func (c *Coordinator) runPhase(ctx context.Context, regs []registration) []Result {
	results := make([]Result, len(regs))
	var wg sync.WaitGroup
	for i, reg := range regs {
		wg.Add(1)
		go func(idx int, r registration) {
			defer wg.Done()
			start := time.Now()
			err := r.handler.OnShutdown(ctx)
			results[idx] = Result{
				Name:     r.name,
				Phase:    r.phase,
				Duration: time.Since(start),
				Err:      err,
			}
		}(i, reg)
	}
	wg.Wait()
	return results
}
