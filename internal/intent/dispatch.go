package intent

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"

	"github.com/nmxmxh/dmct/internal/field"
	"github.com/nmxmxh/dmct/internal/wave"
)

// Tuner picks a frequency inside band from a uniform sample r in [0, 1).
type Tuner interface {
	Tune(band Band, r float64) (float64, error)
}

// LinearTuner maps r onto the band: Low + (r mod Width).
type LinearTuner struct{}

func (LinearTuner) Tune(band Band, r float64) (float64, error) {
	return band.Low + math.Mod(r, band.Width()), nil
}

// Result describes a dispatched intent.
type Result struct {
	Application Application    `json:"application"`
	Frequency   float64        `json:"frequency"`
	Emission    *wave.Emission `json:"emission"`
	NodeID      string         `json:"node_id"`
}

// Dispatcher turns intents into emissions. Each intent is emitted by a
// fresh node joined to the network at a frequency in its application band.
type Dispatcher struct {
	network    *field.Network
	classifier Classifier
	tuner      Tuner
	logger     *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewDispatcher uses the keyword classifier and linear tuner when either is
// nil.
func NewDispatcher(network *field.Network, classifier Classifier, tuner Tuner, rng *rand.Rand, logger *slog.Logger) *Dispatcher {
	if classifier == nil {
		classifier = NewKeywordClassifier()
	}
	if tuner == nil {
		tuner = LinearTuner{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		network:    network,
		classifier: classifier,
		tuner:      tuner,
		rng:        rng,
		logger:     logger.With("component", "intent"),
	}
}

// Do classifies intent, tunes a frequency in the application's band and
// emits the intent with its data from a new node.
func (d *Dispatcher) Do(intent string, data map[string]any) (*Result, error) {
	app := d.classifier.Classify(intent)
	band := app.Band()

	d.mu.Lock()
	r := d.rng.Float64()
	d.mu.Unlock()

	frequency, err := d.tuner.Tune(band, r)
	if err != nil {
		return nil, fmt.Errorf("tune %s: %w", app, err)
	}
	if !band.Contains(frequency) {
		return nil, fmt.Errorf("tuner returned %g outside %s band [%g, %g)", frequency, app, band.Low, band.High)
	}

	node, err := d.network.NewNode(field.WithIdentity(frequency))
	if err != nil {
		return nil, err
	}
	if _, err := d.network.AddNode(node); err != nil {
		return nil, err
	}

	if data == nil {
		data = map[string]any{}
	}
	e, err := node.Emit(Strength(intent), wave.Payload{
		"intent":      intent,
		"application": app.String(),
		"data":        data,
	})
	if err != nil {
		return nil, err
	}

	d.logger.Debug("intent dispatched", "application", app.String(), "frequency", frequency, "emission_id", e.ID)
	return &Result{Application: app, Frequency: frequency, Emission: e, NodeID: node.ID()}, nil
}
