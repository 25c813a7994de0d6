package collision

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

type fakeScoring struct {
	wallHits  []int
	collisions [][2]int
}

func (f *fakeScoring) WallHit(tagID int) { f.wallHits = append(f.wallHits, tagID) }
func (f *fakeScoring) CarCollision(attacker, victim int) {
	f.collisions = append(f.collisions, [2]int{attacker, victim})
}

func testConfig() Config {
	return Config{
		CarCollisionDistanceCM: 25,
		CarCollisionCooldown:   1.0,
		SpeedDiffThreshold:     10,
		WallToleranceCM:        5,
		WallCollisionCooldown:  0.5,
		GhostingSpeedThreshold: 0.20,
		GhostingTimeThreshold:  3.0,
		MaxPlausibleSpeedCMS:   278,
	}
}

func square() ([][2]float64, [][2]float64) {
	outer := [][2]float64{{0, 0}, {200, 0}, {200, 200}, {0, 200}}
	inner := [][2]float64{{50, 50}, {150, 50}, {150, 150}, {50, 150}}
	return outer, inner
}

func TestCarCollisionSpeedArbitration(t *testing.T) {
	Convey("Given two racing cars within collision distance with a clear speed difference", t, func() {
		sink := &fakeScoring{}
		outer, inner := square()
		e := New(testConfig(), sink, outer, inner)

		snapshot := map[int]CarSnapshot{
			1: {X: 100, Y: 100, Speed: 200, Racing: true},
			2: {X: 110, Y: 100, Speed: 50, Racing: true},
		}
		events := e.Update(snapshot, 10.0)

		Convey("The faster car is charged as the attacker", func() {
			So(events, ShouldHaveLength, 1)
			So(events[0].Kind, ShouldEqual, EventCar)
			So(events[0].Attacker, ShouldEqual, 1)
			So(events[0].Victim, ShouldEqual, 2)
			So(sink.collisions, ShouldResemble, [][2]int{{1, 2}})
		})
	})
}

func TestCarCollisionTieBreakLowerTagID(t *testing.T) {
	Convey("Given two racing cars within collision distance at nearly equal speed", t, func() {
		sink := &fakeScoring{}
		outer, inner := square()
		e := New(testConfig(), sink, outer, inner)

		snapshot := map[int]CarSnapshot{
			5: {X: 100, Y: 100, Speed: 100, Racing: true},
			2: {X: 110, Y: 100, Speed: 102, Racing: true},
		}
		events := e.Update(snapshot, 10.0)

		Convey("The lower tag id is charged as the attacker", func() {
			So(events, ShouldHaveLength, 1)
			So(events[0].Attacker, ShouldEqual, 2)
			So(events[0].Victim, ShouldEqual, 5)
		})
	})
}

func TestCarCollisionCooldownSuppressesRepeat(t *testing.T) {
	Convey("Given a pair that just collided", t, func() {
		sink := &fakeScoring{}
		outer, inner := square()
		e := New(testConfig(), sink, outer, inner)

		snapshot := map[int]CarSnapshot{
			1: {X: 100, Y: 100, Speed: 200, Racing: true},
			2: {X: 110, Y: 100, Speed: 50, Racing: true},
		}
		e.Update(snapshot, 10.0)

		Convey("A second frame within the cooldown produces no new event", func() {
			events := e.Update(snapshot, 10.3)
			So(events, ShouldBeEmpty)
			So(sink.collisions, ShouldHaveLength, 1)
		})

		Convey("A frame after the cooldown elapses can fire again", func() {
			events := e.Update(snapshot, 11.5)
			So(events, ShouldHaveLength, 1)
			So(sink.collisions, ShouldHaveLength, 2)
		})
	})
}

func TestWallHitProximityAndCooldown(t *testing.T) {
	Convey("Given a car that drifts within tolerance of the outer wall", t, func() {
		sink := &fakeScoring{}
		outer, inner := square()
		e := New(testConfig(), sink, outer, inner)

		snapshot := map[int]CarSnapshot{
			1: {X: 100, Y: 2, Speed: 100, Racing: true},
		}
		events := e.Update(snapshot, 10.0)

		Convey("A wall event fires against the outer boundary", func() {
			So(events, ShouldHaveLength, 1)
			So(events[0].Kind, ShouldEqual, EventWall)
			So(events[0].Boundary, ShouldEqual, "outer")
			So(sink.wallHits, ShouldResemble, []int{1})
		})

		Convey("A second frame within the wall cooldown produces no new event", func() {
			events := e.Update(snapshot, 10.2)
			So(events, ShouldBeEmpty)
		})
	})
}

func TestGhostingSuppressesStationaryCars(t *testing.T) {
	Convey("Given a car parked near another car for longer than the ghosting time threshold", t, func() {
		sink := &fakeScoring{}
		outer, inner := square()
		e := New(testConfig(), sink, outer, inner)

		for i := 0; i < 5; i++ {
			e.Update(map[int]CarSnapshot{
				1: {X: 100, Y: 100, Speed: 150, Racing: true},
				2: {X: 110, Y: 100, Speed: 0, Racing: true},
			}, float64(i))
		}

		Convey("Once ghosted, the stationary car stops triggering collisions", func() {
			events := e.Update(map[int]CarSnapshot{
				1: {X: 100, Y: 100, Speed: 150, Racing: true},
				2: {X: 110, Y: 100, Speed: 0, Racing: true},
			}, 10.0)
			So(events, ShouldBeEmpty)
		})
	})
}

func TestNonRacingCarsAreIgnored(t *testing.T) {
	Convey("Given two overlapping cars where one has not started racing", t, func() {
		sink := &fakeScoring{}
		outer, inner := square()
		e := New(testConfig(), sink, outer, inner)

		snapshot := map[int]CarSnapshot{
			1: {X: 100, Y: 100, Speed: 200, Racing: false},
			2: {X: 110, Y: 100, Speed: 50, Racing: true},
		}
		events := e.Update(snapshot, 10.0)

		Convey("No collision is reported", func() {
			So(events, ShouldBeEmpty)
			So(sink.collisions, ShouldBeEmpty)
		})
	})
}
