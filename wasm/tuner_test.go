package wasm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/nmxmxh/dmct/internal/intent"
)

// Same mapping as intent.LinearTuner for r in [0, 1): low + r*(high-low).
const linearWat = `
(module
  (func (export "tune") (param $low f64) (param $high f64) (param $r f64) (result f64)
    (f64.add
      (local.get $low)
      (f64.mul (local.get $r) (f64.sub (local.get $high) (local.get $low))))))
`

func TestTuner_Tune(t *testing.T) {
	wasmBytes, err := wasmer.Wat2Wasm(linearWat)
	require.NoError(t, err)

	tuner, err := NewTuner(wasmBytes)
	require.NoError(t, err)

	band := intent.Social.Band()
	f, err := tuner.Tune(band, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, band.Low+0.05, f, 1e-12)
	assert.True(t, band.Contains(f))
}

func TestTuner_MissingExport(t *testing.T) {
	wasmBytes, err := wasmer.Wat2Wasm(`(module (func (export "other")))`)
	require.NoError(t, err)

	_, err = NewTuner(wasmBytes)
	assert.Error(t, err)
}

func TestLoadTuner_Text(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linear.wat")
	require.NoError(t, os.WriteFile(path, []byte(linearWat), 0o600))

	tuner, err := LoadTuner(path)
	require.NoError(t, err)

	f, err := tuner.Tune(intent.Money.Band(), 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, f, 1e-12)
}

func TestTuner_SatisfiesIntent(t *testing.T) {
	var _ intent.Tuner = (*Tuner)(nil)
}
