package scoring

import (
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func testDefaults() Defaults {
	return Defaults{
		WallHitPenalty:              5.0,
		CarCollisionAttackerPenalty: 5.0,
		CarCollisionVictimBonus:     2.0,
		CornerCutPenalty:            3.0,
		CornerCutVoidLap:            false,
		PitZoneOverspeedPenalty:     2.0,
		TotalLaps:                   10,
		MinLapsToQualify:            3,
	}
}

func TestELP(t *testing.T) {
	Convey("Given a closed lap", t, func() {
		Convey("A void lap always scores positive infinity", func() {
			ls := &LapScore{Raw: 40, Penalty: 100, Void: true}
			So(math.IsInf(ls.ELP(), 1), ShouldBeTrue)
		})
		Convey("Raw plus penalty minus bonus never drops below zero", func() {
			ls := &LapScore{Raw: 1, Penalty: 0, Bonus: 10}
			So(ls.ELP(), ShouldEqual, 0)
		})
		Convey("A lap with both penalty and bonus nets the two against the raw time", func() {
			ls := &LapScore{Raw: 40, Penalty: 5, Bonus: 2}
			So(ls.ELP(), ShouldEqual, 43)
		})
	})
}

func TestOpenCloseLap(t *testing.T) {
	Convey("Given a fresh scoring engine", t, func() {
		e := New(testDefaults(), 50, nil)
		e.Register(1, "tag-1")

		Convey("Closing a lap that was never opened records a zero-duration lap-0 closure instead of silently dropping it", func() {
			ls := e.CloseLap(1, 30, 30)

			So(ls, ShouldNotBeNil)
			So(ls.Lap, ShouldEqual, 0)
			So(ls.Raw, ShouldEqual, 0)
			So(e.History(1), ShouldHaveLength, 1)
		})

		Convey("Opening then closing a lap records it in history", func() {
			e.OpenLap(1, 1)
			ls := e.CloseLap(1, 35.5, 35.5)

			So(ls, ShouldNotBeNil)
			So(ls.Raw, ShouldEqual, 35.5)
			So(e.LapsDone(1), ShouldEqual, 1)
			So(e.History(1), ShouldHaveLength, 1)
		})
	})
}

func TestWallHitPenalty(t *testing.T) {
	Convey("Given an open lap for tag 1", t, func() {
		e := New(testDefaults(), 50, nil)
		e.Register(1, "tag-1")
		e.OpenLap(1, 1)

		Convey("A wall hit charges the default penalty against the open lap", func() {
			e.WallHit(1)
			ls := e.CloseLap(1, 40, 40)

			So(ls.Penalty, ShouldEqual, 5.0)
			So(ls.WallHits, ShouldEqual, 1)
			So(ls.ELP(), ShouldEqual, 45)
		})
	})
}

func TestCarCollisionAttackerAndVictim(t *testing.T) {
	Convey("Given two open laps, tag 1 the attacker and tag 2 the victim", t, func() {
		e := New(testDefaults(), 50, nil)
		e.Register(1, "tag-1")
		e.Register(2, "tag-2")
		e.OpenLap(1, 1)
		e.OpenLap(2, 1)

		e.CarCollision(1, 2)

		Convey("The attacker's lap is penalized", func() {
			ls := e.CloseLap(1, 40, 40)
			So(ls.Penalty, ShouldEqual, 5.0)
			So(ls.AttackerEvents, ShouldEqual, 1)
		})
		Convey("The victim's lap is credited a bonus", func() {
			ls := e.CloseLap(2, 40, 40)
			So(ls.Bonus, ShouldEqual, 2.0)
			So(ls.VictimEvents, ShouldEqual, 1)
		})
	})
}

func TestCornerCutPenaltyOrVoid(t *testing.T) {
	Convey("Given an engine configured to penalize rather than void corner cuts", t, func() {
		e := New(testDefaults(), 50, nil)
		e.Register(1, "tag-1")
		e.OpenLap(1, 1)
		e.CornerCut(1)
		ls := e.CloseLap(1, 40, 40)

		Convey("The lap is penalized but not voided", func() {
			So(ls.Void, ShouldBeFalse)
			So(ls.Penalty, ShouldEqual, 3.0)
			So(ls.CornerCuts, ShouldEqual, 1)
		})
	})

	Convey("Given an engine configured to void laps on corner cuts", t, func() {
		defaults := testDefaults()
		defaults.CornerCutVoidLap = true
		e := New(defaults, 50, nil)
		e.Register(1, "tag-1")
		e.OpenLap(1, 1)
		e.CornerCut(1)
		ls := e.CloseLap(1, 40, 40)

		Convey("The lap is voided and reports an infinite ELP", func() {
			So(ls.Void, ShouldBeTrue)
			So(math.IsInf(ls.ELP(), 1), ShouldBeTrue)
		})
	})
}

func TestOverspeedChargedOnce(t *testing.T) {
	Convey("Given an open lap charged twice for pit-zone overspeed", t, func() {
		e := New(testDefaults(), 50, nil)
		e.Register(1, "tag-1")
		e.OpenLap(1, 1)
		e.Overspeed(1)
		e.Overspeed(1)
		ls := e.CloseLap(1, 40, 40)

		Convey("Only the first charge is applied", func() {
			So(ls.Penalty, ShouldEqual, 2.0)
			So(ls.Overspeed, ShouldBeTrue)
		})
	})
}

func TestApplyConfigFallback(t *testing.T) {
	Convey("Given a scoring engine with its compile-time defaults", t, func() {
		e := New(testDefaults(), 50, nil)

		Convey("A zero or negative override field falls back to the default", func() {
			merged := e.ApplyConfig(DynamicConfig{
				WallHitPenalty:              10,
				CarCollisionAttackerPenalty: 0,
				CarCollisionVictimBonus:     -1,
				TotalLaps:                   0,
			})

			So(merged.WallHitPenalty, ShouldEqual, 10)
			So(merged.CarCollisionAttackerPenalty, ShouldEqual, 5.0)
			So(merged.CarCollisionVictimBonus, ShouldEqual, 2.0)
			So(merged.TotalLaps, ShouldEqual, 10)
		})
	})
}

func TestLeaderboardRanksByBestELPThenBestLap(t *testing.T) {
	Convey("Given two tags with recorded laps", t, func() {
		e := New(testDefaults(), 50, nil)
		e.Register(1, "alpha")
		e.Register(2, "beta")

		e.OpenLap(1, 1)
		e.CloseLap(1, 50, 50)
		e.OpenLap(2, 1)
		e.CloseLap(2, 40, 40)

		Convey("The tag with the lower best ELP ranks first", func() {
			rows := e.Leaderboard()
			So(rows, ShouldHaveLength, 2)
			So(rows[0].TagID, ShouldEqual, 2)
			So(rows[1].TagID, ShouldEqual, 1)
		})

		Convey("A tag below the qualifying lap count does not qualify", func() {
			rows := e.Leaderboard()
			for _, r := range rows {
				So(r.Qualifies, ShouldBeFalse)
			}
		})
	})
}

func TestReset(t *testing.T) {
	Convey("Given an engine with history and an overridden configuration", t, func() {
		e := New(testDefaults(), 50, nil)
		e.Register(1, "tag-1")
		e.ApplyConfig(DynamicConfig{WallHitPenalty: 99, TotalLaps: 2})
		e.OpenLap(1, 1)
		e.CloseLap(1, 10, 10)

		e.Reset()

		Convey("History, open laps, and the feed are cleared", func() {
			So(e.History(1), ShouldBeEmpty)
			So(e.Feed(10), ShouldBeEmpty)
		})
		Convey("The dynamic configuration reverts to the compile-time defaults", func() {
			So(e.CurrentConfig().WallHitPenalty, ShouldEqual, 5.0)
			So(e.CurrentConfig().TotalLaps, ShouldEqual, 10)
		})
	})
}
