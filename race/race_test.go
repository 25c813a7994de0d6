package race

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"xrace/lap"
	"xrace/scoring"
)

func newManager() (*Manager, *scoring.Engine) {
	defaults := scoring.Defaults{
		WallHitPenalty:              5.0,
		CarCollisionAttackerPenalty: 5.0,
		CarCollisionVictimBonus:     2.0,
		CornerCutPenalty:            3.0,
		PitZoneOverspeedPenalty:     2.0,
		TotalLaps:                  10,
		MinLapsToQualify:           3,
	}
	se := scoring.New(defaults, 50, nil)
	m := New(se)
	return m, se
}

func registerVertical(m *Manager, tagID int) *lap.Engine {
	e := m.Register(tagID, "car")
	e.Orientation = lap.OrientationVertical
	e.StartLineX = 100
	e.StartLineY1 = 30
	e.StartLineY2 = 70
	e.LineCrossingThreshold = 20
	e.MinLapTime = 3.0
	e.TotalLaps = 2
	return e
}

func TestAdminStartAppliesDynamicConfigAndArms(t *testing.T) {
	Convey("Given a manager with one registered car", t, func() {
		m, _ := newManager()
		registerVertical(m, 1)

		Convey("AdminStart with a non-positive override falls back to the compile-time default", func() {
			merged := m.AdminStart(Config{WallHitPenalty: 0, CarCollisionAttackerPenalty: 9, CarCollisionVictimBonus: 0, TotalLaps: 5})

			So(merged.WallHitPenalty, ShouldEqual, 5.0)
			So(merged.CarCollisionAttackerPenalty, ShouldEqual, 9)
			So(merged.CarCollisionVictimBonus, ShouldEqual, 2.0)
			So(merged.TotalLaps, ShouldEqual, 5)
		})

		Convey("AdminStart arms every registered car", func() {
			m.AdminStart(Config{TotalLaps: 2})
			info, ok := m.GetInfo(1, 0)
			So(ok, ShouldBeTrue)
			So(info.State, ShouldEqual, lap.StateArmed)
		})
	})
}

func TestUpdateTracksRaceClockToCompletion(t *testing.T) {
	Convey("Given a two-lap race with a single car", t, func() {
		m, _ := newManager()
		registerVertical(m, 1)
		m.AdminStart(Config{TotalLaps: 2})

		So(m.Active(), ShouldBeFalse)

		m.Update(1, 90, 50, 500, 0.0)
		events := m.Update(1, 110, 50, 500, 1.0)

		Convey("The first crossing starts the race clock", func() {
			So(events, ShouldHaveLength, 1)
			So(events[0].Kind, ShouldEqual, lap.EventRaceStart)
			So(m.Active(), ShouldBeTrue)
		})

		Convey("Completing every lap finishes the race and clears race_active", func() {
			m.Update(1, 90, 200, 500, 4.0)
			m.Update(1, 110, 50, 500, 5.0)
			m.Update(1, 90, 200, 500, 8.0)
			finishEvents := m.Update(1, 110, 50, 500, 9.0)

			So(finishEvents, ShouldHaveLength, 1)
			So(finishEvents[0].Kind, ShouldEqual, lap.EventRaceFinish)
			So(m.Active(), ShouldBeFalse)

			info, _ := m.GetInfo(1, 9.0)
			So(info.State, ShouldEqual, lap.StateFinished)
			So(info.LapsDone, ShouldEqual, 2)
		})
	})
}

func TestResetClearsEverything(t *testing.T) {
	Convey("Given a race that has started", t, func() {
		m, se := newManager()
		registerVertical(m, 1)
		m.AdminStart(Config{TotalLaps: 2})
		m.Update(1, 90, 50, 500, 0.0)
		m.Update(1, 110, 50, 500, 1.0)

		m.Reset()

		Convey("Every lap engine returns to idle and the leaderboard is empty", func() {
			info, _ := m.GetInfo(1, 0)
			So(info.State, ShouldEqual, lap.StateIdle)
			So(m.Leaderboard(), ShouldBeEmpty)
			So(se.LapsDone(1), ShouldEqual, 0)
		})
	})
}
