// Package models holds the plain data structures shared across the engine:
// fixed anchors, the track polygon, and the bounded position trail kept per
// tag.
package models

// Point is a planar coordinate in centimeters.
type Point struct {
	X float64
	Y float64
}

// Anchor is a fixed radio reference at a known coordinate. Anchors are
// created once at boot from configuration and never mutated afterward.
type Anchor struct {
	ID int
	Point
}

// TrailPoint is one sample in a tag's bounded position history.
type TrailPoint struct {
	X         float64
	Y         float64
	Timestamp float64
}

// Track is a closed outer polygon with an optional closed inner polygon,
// both given as ordered vertex lists in centimeters. Immutable after load.
type Track struct {
	Outer []Point
	Inner []Point
}
