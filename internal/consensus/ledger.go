// Package consensus implements the causal ledger: an append-only event log
// in which every new event is checked against all prior events for light
// cone reachability and phase resonance. Resonant pairs feed per-payload
// standing-wave buckets whose accumulated amplitude decides confirmation.
//
// Event ids are not collision resistant and event origins are not
// authenticated; confirmation is purely geometric. A participant controlling
// enough positions can manufacture resonance.
package consensus

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nmxmxh/dmct/internal/core"
	"github.com/nmxmxh/dmct/internal/metrics"
	"github.com/nmxmxh/dmct/internal/wave"
)

// Ledger is safe for concurrent use. Submit and Merge serialise on a single
// writer lock; queries take the read lock and return copies.
type Ledger struct {
	config    Config
	clock     clock.Clock
	metrics   *metrics.Metrics
	logger    *slog.Logger
	observers []Observer

	mu         sync.RWMutex
	events     []*Event
	index      map[string]int
	successors map[string][]string
	buckets    map[string]*bucket
}

type bucket struct {
	amplitude    float64
	contributors map[string]struct{}
}

// Notification describes an appended event and the resulting state of its
// own data bucket.
type Notification struct {
	Event     Event  `json:"event"`
	Key       string `json:"key"`
	Consensus Status `json:"consensus"`
}

// Observer is called after every successful append, outside the ledger
// lock.
type Observer func(Notification)

// Option configures a Ledger.
type Option func(*Ledger)

func WithConfig(config Config) Option {
	return func(l *Ledger) { l.config = config }
}

func WithClock(c clock.Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithObserver registers fn for append notifications.
func WithObserver(fn Observer) Option {
	return func(l *Ledger) { l.observers = append(l.observers, fn) }
}

func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		config:     DefaultConfig(),
		clock:      clock.New(),
		logger:     slog.Default(),
		index:      make(map[string]int),
		successors: make(map[string][]string),
		buckets:    make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	l.logger = l.logger.With("component", "consensus")
	return l
}

func (l *Ledger) now() float64 {
	return float64(l.clock.Now().UnixNano()) / float64(time.Second)
}

func (l *Ledger) key(data any) string {
	return truncate(canonical(data), l.config.KeyLength)
}

// Submit appends an event observed at position and time t and scores it
// against every prior event. Resubmitting an identical event (same
// position, time and data) is a no-op returning the existing id.
func (l *Ledger) Submit(position core.Coordinate, t float64, data any, amplitude float64) (string, error) {
	e := &Event{
		Position:  [3]float64{position.X, position.Y, position.Z},
		Time:      t,
		Data:      data,
		Amplitude: amplitude,
	}
	if err := e.Validate(); err != nil {
		return "", err
	}
	e.ID = EventID(position, t, data)

	l.mu.Lock()
	if _, ok := l.index[e.ID]; ok {
		l.mu.Unlock()
		return e.ID, nil
	}
	l.index[e.ID] = len(l.events)
	l.events = append(l.events, e)
	resonances := l.interfere(len(l.events) - 1)

	size := len(l.events)
	key := l.key(e.Data)
	note := Notification{Event: *e, Key: key, Consensus: l.statusLocked(key)}
	l.mu.Unlock()

	l.metrics.MarkEventAppended(resonances, size)
	l.logger.Debug("event submitted", "event_id", e.ID, "resonances", resonances, "events", size)

	for _, fn := range l.observers {
		fn(note)
	}
	return e.ID, nil
}

// SubmitNow submits an event at the ledger clock's current instant.
func (l *Ledger) SubmitNow(position core.Coordinate, data any, amplitude float64) (string, error) {
	return l.Submit(position, l.now(), data, amplitude)
}

// interfere scores events[i] against events[:i]. It records causal edges
// for pairs within each other's light cone and reinforces resonant pairs.
// It returns the number of resonant pairs. Caller holds the write lock.
func (l *Ledger) interfere(i int) int {
	c := l.config.LightSpeed
	next := l.events[i]
	at := next.Coordinate()

	resonances := 0
	for _, prior := range l.events[:i] {
		distance := core.Distance(prior.Coordinate(), at)
		dt := math.Abs(next.Time - prior.Time)

		if distance <= c*dt {
			l.successors[prior.ID] = append(l.successors[prior.ID], next.ID)
		}

		strength := math.Abs(math.Cos(phase(distance, c*dt)))
		if strength <= l.config.ResonanceTolerance {
			continue
		}
		resonances++

		prior.Confirmations += next.Amplitude
		next.Confirmations += prior.Amplitude

		key := l.key(prior.Data)
		b, ok := l.buckets[key]
		if !ok {
			b = &bucket{contributors: make(map[string]struct{})}
			l.buckets[key] = b
		}
		b.amplitude += strength
		b.contributors[prior.ID] = struct{}{}
	}
	return resonances
}

// phase returns 2π(distance - travel) reduced to [0, 2π).
func phase(distance, travel float64) float64 {
	p := math.Mod(2*math.Pi*(distance-travel), 2*math.Pi)
	if p < 0 {
		p += 2 * math.Pi
	}
	return p
}

// Status is the consensus state of one data key.
type Status struct {
	Known      bool    `json:"known"` // False when no resonant pair touched the key yet
	Confirmed  bool    `json:"confirmed"`
	Confidence float64 `json:"confidence"`
	Validators int     `json:"validators"`
	Amplitude  float64 `json:"amplitude"`
}

// Consensus reports the standing-wave state of key. An unknown key has no
// opinion: Known is false and every other field is zero.
func (l *Ledger) Consensus(key string) Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.statusLocked(key)
}

// ConsensusFor is Consensus keyed by the data itself.
func (l *Ledger) ConsensusFor(data any) Status {
	return l.Consensus(l.key(data))
}

func (l *Ledger) statusLocked(key string) Status {
	b, ok := l.buckets[key]
	if !ok {
		return Status{}
	}
	return Status{
		Known:      true,
		Confirmed:  b.amplitude > l.config.ConfirmThreshold,
		Confidence: math.Min(b.amplitude/l.config.ConfidenceScale, 1),
		Validators: len(b.contributors),
		Amplitude:  b.amplitude,
	}
}

// TimelineEntry is an event visible from a query position.
type TimelineEntry struct {
	ID         string  `json:"id"`
	Data       any     `json:"data"`
	Confidence float64 `json:"confidence"`
	Age        float64 `json:"age"`
	Distance   float64 `json:"distance"`
}

// Timeline lists the events inside the past light cone of position at the
// ledger clock's current instant.
func (l *Ledger) Timeline(position core.Coordinate) []TimelineEntry {
	return l.TimelineAt(position, l.now())
}

// TimelineAt lists the events e with distance(position, e) <= c*(now -
// e.Time), ordered by age - distance/c ascending.
func (l *Ledger) TimelineAt(position core.Coordinate, now float64) []TimelineEntry {
	c := l.config.LightSpeed

	l.mu.RLock()
	var out []TimelineEntry
	for _, e := range l.events {
		distance := core.Distance(position, e.Coordinate())
		age := now - e.Time
		if distance > c*age {
			continue
		}
		out = append(out, TimelineEntry{
			ID:         e.ID,
			Data:       e.Data,
			Confidence: e.Confirmations / l.config.ConfidenceScale,
			Age:        age,
			Distance:   distance,
		})
	}
	l.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Age-out[i].Distance/c < out[j].Age-out[j].Distance/c
	})
	return out
}

// Merge adds the events of other that l does not hold, keeping l's copy on
// id conflicts, then rebuilds every causal edge, confirmation and bucket by
// replaying the merged log in order. It returns the merged event count.
// The replay is quadratic in the number of events. Confirmations do not
// depend on merge direction, but each resonant pair credits the bucket of
// its earlier event in log order, so buckets can.
func (l *Ledger) Merge(other *Ledger) int {
	return l.mergeEvents(other.Events())
}

func (l *Ledger) mergeEvents(events []Event) int {
	l.mu.Lock()
	added := 0
	for i := range events {
		e := events[i]
		if _, ok := l.index[e.ID]; ok {
			continue
		}
		l.index[e.ID] = len(l.events)
		l.events = append(l.events, &e)
		added++
	}
	l.rebuild()
	size := len(l.events)
	l.mu.Unlock()

	l.metrics.MarkMerge(size)
	l.logger.Info("ledger merged", "added", added, "events", size)
	return size
}

// rebuild discards derived state and replays the log. Caller holds the
// write lock.
func (l *Ledger) rebuild() {
	l.successors = make(map[string][]string)
	l.buckets = make(map[string]*bucket)
	for _, e := range l.events {
		e.Confirmations = 0
	}
	for i := range l.events {
		l.interfere(i)
	}
}

// Events returns copies of the events in log order.
func (l *Ledger) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.events))
	for i, e := range l.events {
		out[i] = *e
	}
	return out
}

// Event returns a copy of the event with the given id.
func (l *Ledger) Event(id string) (Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.index[id]
	if !ok {
		return Event{}, false
	}
	return *l.events[i], true
}

// Successors returns the ids recorded inside id's light cone, in
// submission order.
func (l *Ledger) Successors(id string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.successors[id]...)
}

// Keys returns the known bucket keys, sorted.
func (l *Ledger) Keys() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	keys := make([]string, 0, len(l.buckets))
	for k := range l.buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// SubmitEmission records an emission as an event at its origin, carrying
// its payload as data.
func (l *Ledger) SubmitEmission(e *wave.Emission) (string, error) {
	return l.Submit(e.Origin, e.Origin.T, map[string]any(e.Payload), e.Amplitude)
}
