package positioning

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"xrace/models"
)

func square4() []models.Point {
	return []models.Point{
		{X: 0, Y: 0},
		{X: 200, Y: 0},
		{X: 200, Y: 200},
		{X: 0, Y: 200},
	}
}

func TestRSSIWeight(t *testing.T) {
	Convey("Given the RSSI weighting curve", t, func() {
		Convey("An excellent reading (-60 dBm) saturates at the minimum weight", func() {
			So(RSSIWeight(-60), ShouldAlmostEqual, rssiMinWeight, 1e-9)
		})
		Convey("A poor reading (-90 dBm) weighs the floor", func() {
			So(RSSIWeight(-90), ShouldAlmostEqual, rssiMinWeight, 1e-9)
		})
		Convey("A reading below the floor is clamped to the minimum weight", func() {
			So(RSSIWeight(-140), ShouldEqual, rssiMinWeight)
		})
		Convey("An unknown (non-negative) reading is treated as full weight", func() {
			So(RSSIWeight(0), ShouldEqual, 1)
		})
	})
}

func TestSolveFourAnchors(t *testing.T) {
	Convey("Given a tag equidistant from all four corners of a 200x200 square", t, func() {
		anchors := square4()
		ranges := []float64{
			141.42, 141.42, 141.42, 141.42,
		}
		rssi := []int{-60, -60, -60, -60}

		result, err := Solve(ranges, rssi, anchors)

		Convey("It solves near the square's center with excellent quality", func() {
			So(err, ShouldBeNil)
			So(result.Quality, ShouldEqual, QualityExcellent)
			So(result.X, ShouldAlmostEqual, 100, 5)
			So(result.Y, ShouldAlmostEqual, 100, 5)
			So(result.ValidAnchors, ShouldEqual, 4)
		})
	})
}

func TestSolveThreeAnchors(t *testing.T) {
	Convey("Given only three of the four anchors reporting a range", t, func() {
		anchors := square4()
		ranges := []float64{141.42, 141.42, 141.42, 0}
		rssi := []int{-60, -60, -60, 0}

		result, err := Solve(ranges, rssi, anchors)

		Convey("It solves with good quality over exactly those three", func() {
			So(err, ShouldBeNil)
			So(result.Quality, ShouldEqual, QualityGood)
			So(result.ValidAnchors, ShouldEqual, 3)
		})
	})
}

func TestSolveTwoAnchors(t *testing.T) {
	Convey("Given only two anchors reporting a range", t, func() {
		anchors := square4()
		ranges := []float64{100, 100, 0, 0}
		rssi := []int{-60, -60, 0, 0}

		result, err := Solve(ranges, rssi, anchors)

		Convey("It blends linearly between them with fair quality", func() {
			So(err, ShouldBeNil)
			So(result.Quality, ShouldEqual, QualityFair)
			So(result.ValidAnchors, ShouldEqual, 2)
			So(result.X, ShouldAlmostEqual, 100, 1e-9)
			So(result.Y, ShouldEqual, 0)
		})
	})
}

func TestSolveUnderdetermined(t *testing.T) {
	Convey("Given fewer than two valid anchor readings", t, func() {
		anchors := square4()
		ranges := []float64{100, 0, 0, 0}
		rssi := []int{-60, 0, 0, 0}

		result, err := Solve(ranges, rssi, anchors)

		Convey("It fails with ErrUnderdetermined and poor quality", func() {
			So(err, ShouldEqual, ErrUnderdetermined)
			So(result.Quality, ShouldEqual, QualityPoor)
		})
	})
}

func TestSolveCollinearAnchorsFallsBack(t *testing.T) {
	Convey("Given three anchors that are collinear", t, func() {
		anchors := []models.Point{
			{X: 0, Y: 0},
			{X: 100, Y: 0},
			{X: 200, Y: 0},
		}
		ranges := []float64{50, 50, 150}
		rssi := []int{-60, -60, -60}

		result, err := Solve(ranges, rssi, anchors)

		Convey("The degenerate linear system falls back to a two-anchor blend", func() {
			So(err, ShouldBeNil)
			So(result.Quality, ShouldEqual, QualityFair)
		})
	})
}
