// Package wasm runs guest modules that choose emission frequencies. A guest
// exports
//
//	tune(low f64, high f64, r f64) -> f64
//
// and must return a value in [low, high).
package wasm

import (
	"fmt"
	"os"
	"sync"

	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/nmxmxh/dmct/internal/intent"
)

const exportName = "tune"

// Tuner is an intent.Tuner backed by a wasm guest. Calls are serialised;
// a wasmer instance is not safe for concurrent use.
// The instance is released by wasmer's finalizers.
type Tuner struct {
	mu       sync.Mutex
	instance *wasmer.Instance
	tune     wasmer.NativeFunction
}

// NewTuner compiles and instantiates wasmBytes.
func NewTuner(wasmBytes []byte) (*Tuner, error) {
	engine := wasmer.NewEngine()
	store := wasmer.NewStore(engine)
	module, err := wasmer.NewModule(store, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("compile tuner: %w", err)
	}
	instance, err := wasmer.NewInstance(module, wasmer.NewImportObject())
	if err != nil {
		return nil, fmt.Errorf("instantiate tuner: %w", err)
	}
	tune, err := instance.Exports.GetFunction(exportName)
	if err != nil {
		return nil, fmt.Errorf("tuner export %q: %w", exportName, err)
	}
	return &Tuner{instance: instance, tune: tune}, nil
}

// LoadTuner reads a .wasm file, or a .wat text module, from path.
func LoadTuner(path string) (*Tuner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 || string(data[:4]) != "\x00asm" {
		if data, err = wasmer.Wat2Wasm(string(data)); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return NewTuner(data)
}

func (t *Tuner) Tune(band intent.Band, r float64) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	result, err := t.tune(band.Low, band.High, r)
	if err != nil {
		return 0, fmt.Errorf("tuner call: %w", err)
	}
	f, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("tuner returned %T, want f64", result)
	}
	return f, nil
}
