package consensus

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	sliceExtent = 20.0 // Side of the sampled square, centred on the origin
	sliceDecay  = 5.0
)

// FieldSlice samples the consensus field on a resolution x resolution grid
// over the z=0 plane, x and y in [-10, 10). Each event contributes
// amplitude * exp(-d/5) * cos(2πd), with d the planar distance to the cell.
// Element (i, j) is the cell at x index i and y index j.
func (l *Ledger) FieldSlice(resolution int) *mat.Dense {
	if resolution <= 0 {
		resolution = 20
	}
	events := l.Events()

	grid := mat.NewDense(resolution, resolution, nil)
	for i := 0; i < resolution; i++ {
		x := (float64(i)/float64(resolution) - 0.5) * sliceExtent
		for j := 0; j < resolution; j++ {
			y := (float64(j)/float64(resolution) - 0.5) * sliceExtent

			sum := 0.0
			for _, e := range events {
				d := math.Hypot(x-e.Position[0], y-e.Position[1])
				sum += e.Amplitude * math.Exp(-d/sliceDecay) * math.Cos(2*math.Pi*d)
			}
			grid.Set(i, j, sum)
		}
	}
	return grid
}
