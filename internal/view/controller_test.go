package view

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/metar-view/internal/metar"
)

// fakeSource answers from fixed tables. Identifiers listed in gates block
// until the gate is closed.
type fakeSource struct {
	mu           sync.Mutex
	airports     []string
	airportsErr  error
	observations map[string]metar.Observation
	errs         map[string]error
	gates        map[string]chan struct{}
	calls        []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		observations: map[string]metar.Observation{},
		errs:         map[string]error{},
		gates:        map[string]chan struct{}{},
	}
}

func (f *fakeSource) Airports(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.airportsErr != nil {
		return nil, f.airportsErr
	}
	return append([]string(nil), f.airports...), nil
}

func (f *fakeSource) Observation(ctx context.Context, icao string) (metar.Observation, error) {
	f.mu.Lock()
	f.calls = append(f.calls, icao)
	gate := f.gates[icao]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[icao]; err != nil {
		return metar.Observation{}, err
	}
	obs, ok := f.observations[icao]
	if !ok {
		return metar.Observation{}, metar.ErrUnexpectedStatus
	}
	return obs, nil
}

func (f *fakeSource) gate(icao string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[icao] = ch
	return ch
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func viennaObservation() metar.Observation {
	return metar.Observation{
		ICAO:          "LOWW",
		Name:          "Vienna",
		Temperature:   "15",
		DewPoint:      "9",
		Humidity:      "65",
		WindDirection: "270",
		WindSpeed:     "8",
		Visibility:    "9999",
		Weather:       "Few Clouds",
		QNH:           "1015",
	}
}

func stationObservation(icao, name string) metar.Observation {
	obs := viennaObservation()
	obs.ICAO = icao
	obs.Name = metar.Value(name)
	return obs
}

func TestControllerMountPublishesListAndObservation(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.airports = []string{"LOWW", "EDDM"}
	source.observations["LOWW"] = viennaObservation()

	c := NewController(source, "LOWW", zaptest.NewLogger(t))
	defer c.Close()

	c.Mount()
	c.Wait()

	state := c.Snapshot()
	if state.Status != StatusReady {
		t.Fatalf("expected ready, got %s", state.Status)
	}
	if !slices.Equal(state.Airports, []string{"LOWW", "EDDM"}) {
		t.Fatalf("expected airports in order, got %v", state.Airports)
	}
	if state.Observation == nil || state.Observation.ICAO != "LOWW" {
		t.Fatalf("expected LOWW observation, got %+v", state.Observation)
	}
}

func TestControllerLoadingUntilFirstObservation(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.airportsErr = errors.New("list down")
	source.observations["LOWW"] = viennaObservation()
	gate := source.gate("LOWW")

	c := NewController(source, "LOWW", zaptest.NewLogger(t))
	defer c.Close()

	if got := c.Snapshot().Status; got != StatusLoading {
		t.Fatalf("expected loading before mount, got %s", got)
	}

	c.Mount()
	if got := c.Snapshot().Status; got != StatusLoading {
		t.Fatalf("expected loading while fetch pending, got %s", got)
	}

	close(gate)
	c.Wait()

	state := c.Snapshot()
	if state.Status != StatusReady {
		t.Fatalf("expected ready, got %s", state.Status)
	}
	if len(state.Airports) != 0 {
		t.Fatalf("expected empty list after list failure, got %v", state.Airports)
	}
}

func TestControllerUnavailableWhenFirstFetchFails(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.airports = []string{"LOWW", "EDDM"}

	c := NewController(source, "LOWW", zaptest.NewLogger(t))
	defer c.Close()

	c.Mount()
	c.Wait()

	state := c.Snapshot()
	if state.Status != StatusUnavailable {
		t.Fatalf("expected unavailable, got %s", state.Status)
	}
	if state.LastError == "" {
		t.Fatalf("expected last error to be recorded")
	}
	if !slices.Equal(state.Airports, []string{"LOWW", "EDDM"}) {
		t.Fatalf("expected selector to keep list, got %v", state.Airports)
	}
}

func TestControllerKeepsObservationOnFailure(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.airports = []string{"LOWW", "EDDM"}
	source.observations["LOWW"] = viennaObservation()
	source.errs["EDDM"] = metar.ErrUnexpectedStatus

	c := NewController(source, "LOWW", zaptest.NewLogger(t))
	defer c.Close()

	c.Mount()
	c.Wait()

	if err := c.Select("EDDM"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.Wait()

	state := c.Snapshot()
	if state.Status != StatusReady {
		t.Fatalf("expected ready to be kept, got %s", state.Status)
	}
	if state.Selection != "EDDM" {
		t.Fatalf("expected selection EDDM, got %s", state.Selection)
	}
	if state.Observation == nil || state.Observation.ICAO != "LOWW" {
		t.Fatalf("expected prior LOWW observation, got %+v", state.Observation)
	}
}

func TestControllerLatestSelectionWins(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.airports = []string{"LOWW", "EDDM", "KJFK"}
	source.observations["LOWW"] = viennaObservation()
	source.observations["EDDM"] = stationObservation("EDDM", "Munich")
	source.observations["KJFK"] = stationObservation("KJFK", "New York")

	c := NewController(source, "LOWW", zaptest.NewLogger(t))
	defer c.Close()

	c.Mount()
	c.Wait()

	eddm := source.gate("EDDM")
	if err := c.Select("EDDM"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Select("KJFK"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := c.Snapshot().Generation; got != 3 {
		t.Fatalf("expected generation 3, got %d", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.Snapshot().Status != StatusReady || c.Snapshot().Observation.ICAO != "KJFK" {
		if time.Now().After(deadline) {
			t.Fatalf("expected KJFK to be published, got %+v", c.Snapshot().Observation)
		}
		time.Sleep(time.Millisecond)
	}

	// EDDM answers last; its result belongs to a stale generation.
	close(eddm)
	c.Wait()

	state := c.Snapshot()
	if state.Observation.ICAO != "KJFK" {
		t.Fatalf("expected KJFK after stale EDDM response, got %s", state.Observation.ICAO)
	}
	if state.Selection != "KJFK" {
		t.Fatalf("expected selection KJFK, got %s", state.Selection)
	}
}

func TestControllerSelectIgnoresCurrentValue(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.observations["LOWW"] = viennaObservation()

	c := NewController(source, "LOWW", zaptest.NewLogger(t))
	defer c.Close()

	c.Mount()
	c.Wait()

	if err := c.Select("LOWW"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.Wait()

	if got := source.callCount(); got != 1 {
		t.Fatalf("expected one observation fetch, got %d", got)
	}
}

func TestControllerSelectRejectsEmpty(t *testing.T) {
	t.Parallel()

	c := NewController(newFakeSource(), "LOWW", zaptest.NewLogger(t))
	defer c.Close()

	if err := c.Select(""); !errors.Is(err, ErrEmptySelection) {
		t.Fatalf("expected ErrEmptySelection, got %v", err)
	}
}

func TestControllerSelectBeforeMount(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.observations["EDDM"] = stationObservation("EDDM", "Munich")

	c := NewController(source, "LOWW", zaptest.NewLogger(t))
	defer c.Close()

	if err := c.Select("EDDM"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := source.callCount(); got != 0 {
		t.Fatalf("expected no fetch before mount, got %d", got)
	}

	c.Mount()
	c.Mount()
	c.Wait()

	if got := source.callCount(); got != 1 {
		t.Fatalf("expected exactly one fetch after mount, got %d", got)
	}
	if obs := c.Snapshot().Observation; obs == nil || obs.ICAO != "EDDM" {
		t.Fatalf("expected EDDM observation, got %+v", obs)
	}
}

func TestControllerRefreshIsIdempotent(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.observations["LOWW"] = viennaObservation()

	c := NewController(source, "LOWW", zaptest.NewLogger(t))
	defer c.Close()

	c.Mount()
	c.Wait()
	first := Summary(*c.Snapshot().Observation)

	c.Refresh()
	c.Wait()
	second := Summary(*c.Snapshot().Observation)

	if first != second {
		t.Fatalf("expected identical summary after refresh, got %q and %q", first, second)
	}
	if got := source.callCount(); got != 2 {
		t.Fatalf("expected two fetches, got %d", got)
	}
}

func TestControllerSubscribeReceivesChanges(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.observations["LOWW"] = viennaObservation()

	c := NewController(source, "LOWW", zaptest.NewLogger(t))
	defer c.Close()

	updates, unsubscribe := c.Subscribe()
	defer unsubscribe()

	first := <-updates
	if first.Status != StatusLoading {
		t.Fatalf("expected initial loading state, got %s", first.Status)
	}

	c.Mount()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case state := <-updates:
			if state.Status == StatusReady {
				return
			}
		case <-timeout:
			t.Fatalf("expected ready state to be pushed")
		}
	}
}

func TestControllerCloseCancelsInFlight(t *testing.T) {
	t.Parallel()

	blocked := make(chan struct{})
	c := NewController(blockingSource{blocked: blocked}, "LOWW", zaptest.NewLogger(t))

	updates, _ := c.Subscribe()
	c.Mount()
	<-blocked

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected Close to cancel the pending fetch")
	}

	for range updates {
	}
	if got := c.Snapshot().Status; got != StatusLoading {
		t.Fatalf("expected cancelled fetch not to publish, got %s", got)
	}
}

func TestControllerTimeoutBoundsFetch(t *testing.T) {
	t.Parallel()

	c := NewController(blockingSource{}, "LOWW", zaptest.NewLogger(t), WithRequestTimeout(20*time.Millisecond))
	defer c.Close()

	c.Mount()
	c.Wait()

	state := c.Snapshot()
	if state.Status != StatusUnavailable {
		t.Fatalf("expected unavailable after timeout, got %s", state.Status)
	}
}

// blockingSource blocks every call until its context ends.
type blockingSource struct {
	blocked chan struct{}
}

func (b blockingSource) Airports(ctx context.Context) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b blockingSource) Observation(ctx context.Context, icao string) (metar.Observation, error) {
	if b.blocked != nil {
		close(b.blocked)
	}
	<-ctx.Done()
	return metar.Observation{}, ctx.Err()
}
