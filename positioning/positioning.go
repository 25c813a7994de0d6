// Package positioning solves a tag's 2-D position from per-anchor ranges,
// with RSSI-weighted multilateration when enough anchors report and a
// degraded-mode fallback when only two are usable.
package positioning

import (
	"errors"
	"sort"

	"xrace/models"
)

// RSSI weighting defaults (spec §4.1). These are not part of the runtime
// configuration — the spec lists them alongside the solver's formulas, not
// in the configuration table, so they stay fixed constants here.
const (
	rssiExcellent = -60.0
	rssiPoor      = -90.0
	rssiNorm      = 30.0
	rssiMinWeight = 0.1

	degenerateDenomThreshold = 1e-3
)

// Quality labels a solved or failed fix.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
)

// Result is a solved position, or a failed solve with Quality "poor".
type Result struct {
	X, Y         float64
	Quality      Quality
	ValidAnchors int
}

// ErrUnderdetermined is returned when fewer than two anchors have a usable
// range, so no position can be solved.
var ErrUnderdetermined = errors.New("positioning: fewer than two valid anchors")

type anchorReading struct {
	id     int
	x, y   float64
	r      float64
	weight float64
}

// RSSIWeight converts a dBm reading into a [MIN_WEIGHT, 1] weight. A value of
// 0 means "unknown" and is treated as full weight, matching the source
// convention that RSSI is opt-in per packet.
func RSSIWeight(rssi int) float64 {
	if rssi >= 0 {
		return 1
	}
	w := 1 + (float64(rssi)+(rssiExcellent+rssiPoor)/2)/rssiNorm
	if w < rssiMinWeight {
		return rssiMinWeight
	}
	return w
}

// Solve computes a fix from per-anchor ranges (cm, non-positive means "no
// reading"), optional per-anchor RSSI (nil or 0 entries mean "unknown"), and
// the anchor coordinates indexed the same way as ranges.
func Solve(ranges []float64, rssi []int, anchors []models.Point) (Result, error) {
	var valid []anchorReading
	for i, r := range ranges {
		if r <= 0 || i >= len(anchors) {
			continue
		}
		rv := 0
		if rssi != nil && i < len(rssi) {
			rv = rssi[i]
		}
		valid = append(valid, anchorReading{
			id:     i,
			x:      anchors[i].X,
			y:      anchors[i].Y,
			r:      r,
			weight: RSSIWeight(rv),
		})
	}

	switch {
	case len(valid) >= 4:
		return solveWeightedMultilateration(valid)
	case len(valid) == 3:
		return solveTopThree(valid)
	case len(valid) == 2:
		return solveTwoAnchorBlend(valid[0], valid[1]), nil
	default:
		return Result{Quality: QualityPoor}, ErrUnderdetermined
	}
}

func solveWeightedMultilateration(readings []anchorReading) (Result, error) {
	var sumX, sumY, sumW float64
	var n int
	for i := 0; i < len(readings); i++ {
		for j := i + 1; j < len(readings); j++ {
			for k := j + 1; k < len(readings); k++ {
				x, y, ok := trilaterate3(readings[i], readings[j], readings[k])
				if !ok {
					blend := solveTwoAnchorBlend(readings[i], readings[j])
					x, y = blend.X, blend.Y
				}
				w := (readings[i].weight + readings[j].weight + readings[k].weight) / 3
				sumX += x * w
				sumY += y * w
				sumW += w
				n++
			}
		}
	}
	if n == 0 || sumW == 0 {
		return Result{Quality: QualityPoor}, ErrUnderdetermined
	}
	return Result{X: sumX / sumW, Y: sumY / sumW, Quality: QualityExcellent, ValidAnchors: len(readings)}, nil
}

func solveTopThree(readings []anchorReading) (Result, error) {
	sorted := append([]anchorReading(nil), readings...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].weight > sorted[j].weight })
	x, y, ok := trilaterate3(sorted[0], sorted[1], sorted[2])
	if !ok {
		return solveTwoAnchorBlend(sorted[0], sorted[1]), nil
	}
	return Result{X: x, Y: y, Quality: QualityGood, ValidAnchors: 3}, nil
}

// trilaterate3 solves the linearized 3-circle system. A denom magnitude
// strictly below 1e-3 is treated as degenerate (collinear anchors) and falls
// back to a two-anchor blend over the first two readings.
func trilaterate3(a, b, c anchorReading) (x, y float64, ok bool) {
	A := 2 * (b.x - a.x)
	B := 2 * (b.y - a.y)
	D := 2 * (c.x - b.x)
	E := 2 * (c.y - b.y)
	C := a.r*a.r - b.r*b.r - a.x*a.x + b.x*b.x - a.y*a.y + b.y*b.y
	F := b.r*b.r - c.r*c.r - b.x*b.x + c.x*c.x - b.y*b.y + c.y*c.y

	denom := A*E - B*D
	if abs(denom) < degenerateDenomThreshold {
		return 0, 0, false
	}
	x = (C*E - F*B) / denom
	y = (A*F - C*D) / denom
	return x, y, true
}

// solveTwoAnchorBlend places the fix on the segment between two anchors at
// the ratio r1/(r1+r2); when the anchors coincide it returns the first.
func solveTwoAnchorBlend(a, b anchorReading) Result {
	total := a.r + b.r
	ratio := 0.5
	if total > 0 {
		ratio = a.r / total
	}
	x := a.x + ratio*(b.x-a.x)
	y := a.y + ratio*(b.y-a.y)
	return Result{X: x, Y: y, Quality: QualityFair, ValidAnchors: 2}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
