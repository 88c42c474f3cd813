// Package view owns the per-session METAR view: the selected airport, the
// airport list, the latest observation and the rendering of all three.
package view

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/metar-view/internal/metar"
)

const defaultRequestTimeout = 10 * time.Second

// Source provides airport identifiers and observations.
type Source interface {
	Airports(ctx context.Context) ([]string, error)
	Observation(ctx context.Context, icao string) (metar.Observation, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithRequestTimeout bounds each call to the Source.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Controller composes the airport list and observation fetches for one view.
// Every selection change starts a new generation; results from older
// generations are dropped, so the latest requested selection always wins.
type Controller struct {
	source  Source
	logger  *zap.Logger
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	mounted     bool
	closed      bool
	selection   string
	airports    []string
	observation *metar.Observation
	generation  uint64
	pending     bool
	lastErr     error
	cancelFetch context.CancelFunc
	subscribers map[uint64]chan State
	nextSub     uint64
}

// NewController creates an unmounted controller with defaultICAO selected.
func NewController(source Source, defaultICAO string, logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		source:      source,
		logger:      logger.Named("view"),
		timeout:     defaultRequestTimeout,
		ctx:         ctx,
		cancel:      cancel,
		selection:   defaultICAO,
		airports:    []string{},
		subscribers: make(map[uint64]chan State),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mount starts the airport list fetch and the observation fetch for the
// current selection. Subsequent calls do nothing.
func (c *Controller) Mount() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mounted || c.closed {
		return
	}
	c.mounted = true

	c.wg.Add(1)
	go c.loadAirports()

	c.startFetchLocked()
}

// Select changes the selection and fetches its observation. Selecting the
// current value again does nothing.
func (c *Controller) Select(icao string) error {
	if strings.TrimSpace(icao) == "" {
		return ErrEmptySelection
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || icao == c.selection {
		return nil
	}

	c.logger.Debug("selection changed", zap.String("from", c.selection), zap.String("to", icao))
	c.selection = icao
	if c.mounted {
		c.startFetchLocked()
		return nil
	}
	c.notifyLocked()
	return nil
}

// Refresh fetches the observation for the current selection again.
func (c *Controller) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || !c.mounted {
		return
	}
	c.startFetchLocked()
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshotLocked()
}

// Subscribe returns a channel receiving the latest state after each change,
// starting with the current one. Slow readers only see the newest state.
// The returned func unsubscribes and closes the channel.
func (c *Controller) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan State, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = ch
	ch <- c.snapshotLocked()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(sub)
		}
	}
}

// Wait blocks until all fetches started so far have published or been dropped.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close cancels in-flight fetches, waits for them and closes subscriptions.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	for id, ch := range c.subscribers {
		delete(c.subscribers, id)
		close(ch)
	}
	c.mu.Unlock()
}

func (c *Controller) loadAirports() {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()

	airports, err := c.source.Airports(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if err != nil {
		c.logger.Error("failed to fetch airports", zap.Error(err))
		return
	}
	c.airports = append([]string(nil), airports...)
	c.notifyLocked()
}

func (c *Controller) startFetchLocked() {
	if c.cancelFetch != nil {
		c.cancelFetch()
	}

	c.generation++
	generation := c.generation
	icao := c.selection

	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	c.cancelFetch = cancel
	c.pending = true
	c.notifyLocked()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()

		obs, err := c.source.Observation(ctx, icao)
		c.publishObservation(generation, icao, obs, err)
	}()
}

func (c *Controller) publishObservation(generation uint64, icao string, obs metar.Observation, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if generation != c.generation {
		c.logger.Debug("dropping stale observation",
			zap.String("icao", icao),
			zap.Uint64("generation", generation),
			zap.Uint64("current", c.generation),
		)
		return
	}

	c.pending = false
	c.cancelFetch = nil
	if err != nil {
		c.lastErr = err
		c.logger.Error("failed to fetch observation", zap.String("icao", icao), zap.Error(err))
		c.notifyLocked()
		return
	}

	c.observation = &obs
	c.lastErr = nil
	c.notifyLocked()
}

func (c *Controller) statusLocked() Status {
	switch {
	case c.observation != nil:
		return StatusReady
	case c.pending || c.lastErr == nil:
		return StatusLoading
	default:
		return StatusUnavailable
	}
}

func (c *Controller) snapshotLocked() State {
	state := State{
		Status:     c.statusLocked(),
		Selection:  c.selection,
		Airports:   append([]string{}, c.airports...),
		Generation: c.generation,
	}
	if c.observation != nil {
		obs := *c.observation
		state.Observation = &obs
	}
	if c.lastErr != nil {
		state.LastError = c.lastErr.Error()
	}
	return state
}

func (c *Controller) notifyLocked() {
	if len(c.subscribers) == 0 {
		return
	}
	state := c.snapshotLocked()
	for _, ch := range c.subscribers {
		select {
		case ch <- state:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- state
		}
	}
}
