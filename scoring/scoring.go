// Package scoring maintains each tag's lap history and the effective
// lap-time (ELP) leaderboard: penalty and bonus accumulation, the dynamic
// per-race configuration override, and a bounded human-readable incident
// feed.
package scoring

import (
	"log/slog"
	"math"
	"sort"
	"strconv"
)

// LapScore is one tag's lap, open while racing and closed at the next valid
// crossing.
type LapScore struct {
	TagID   int
	Lap     int
	Raw     float64
	Penalty float64
	Bonus   float64

	WallHits        int
	AttackerEvents  int
	VictimEvents    int
	CornerCuts      int
	Overspeed       bool
	overspeedCharged bool
	Void            bool

	ClosedAt float64
	closed   bool
}

// ELP is the effective, penalty/bonus-adjusted lap time.
func (s *LapScore) ELP() float64 {
	if s.Void {
		return math.Inf(1)
	}
	v := s.Raw + s.Penalty - s.Bonus
	if v < 0 {
		return 0
	}
	return v
}

// Defaults holds the compile-time penalty/bonus/lap-count defaults, used to
// fill in any field a dynamic config override omits or sets non-positive.
type Defaults struct {
	WallHitPenalty              float64
	CarCollisionAttackerPenalty float64
	CarCollisionVictimBonus     float64
	CornerCutPenalty            float64
	CornerCutVoidLap            bool
	PitZoneOverspeedPenalty     float64
	TotalLaps                   int
	MinLapsToQualify            int
}

// DynamicConfig is the subset of Defaults overridable at admin-start time.
type DynamicConfig struct {
	WallHitPenalty              float64
	CarCollisionAttackerPenalty float64
	CarCollisionVictimBonus     float64
	TotalLaps                   int
}

// Engine is the global, single-writer scoring state. Singleton; reset on
// race reset.
type Engine struct {
	defaults Defaults
	current  DynamicConfig

	names  map[int]string
	open   map[int]*LapScore
	closed map[int][]*LapScore

	feed    []string
	feedCap int

	log *slog.Logger
}

// New constructs a scoring engine with the given compile-time defaults and
// incident feed capacity. A nil logger falls back to slog.Default().
func New(defaults Defaults, feedCap int, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		defaults: defaults,
		names:    map[int]string{},
		open:     map[int]*LapScore{},
		closed:   map[int][]*LapScore{},
		feedCap:  feedCap,
		log:      log,
	}
	e.current = DynamicConfig{
		WallHitPenalty:              defaults.WallHitPenalty,
		CarCollisionAttackerPenalty: defaults.CarCollisionAttackerPenalty,
		CarCollisionVictimBonus:     defaults.CarCollisionVictimBonus,
		TotalLaps:                   defaults.TotalLaps,
	}
	return e
}

// Register records a tag's display name for leaderboard/state rendering.
func (e *Engine) Register(tagID int, name string) {
	e.names[tagID] = name
}

// ApplyConfig merges a partial override onto the compile-time defaults:
// a zero or negative field falls back to its default, and any missing
// value keeps the default too (the caller only needs to fill fields it
// actually read from the admin payload).
func (e *Engine) ApplyConfig(override DynamicConfig) DynamicConfig {
	merged := DynamicConfig{
		WallHitPenalty:              fallback(override.WallHitPenalty, e.defaults.WallHitPenalty),
		CarCollisionAttackerPenalty: fallback(override.CarCollisionAttackerPenalty, e.defaults.CarCollisionAttackerPenalty),
		CarCollisionVictimBonus:     fallback(override.CarCollisionVictimBonus, e.defaults.CarCollisionVictimBonus),
		TotalLaps:                   fallbackInt(override.TotalLaps, e.defaults.TotalLaps),
	}
	e.current = merged
	return merged
}

// CurrentConfig returns the dynamic configuration presently in effect.
func (e *Engine) CurrentConfig() DynamicConfig {
	return e.current
}

func fallback(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func fallbackInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// OpenLap replaces any open LapScore for tagID with a new one at lap n.
func (e *Engine) OpenLap(tagID, n int) {
	e.open[tagID] = &LapScore{TagID: tagID, Lap: n}
}

// CloseLap pops the open LapScore, finalizes it, and appends it to history.
// If no lap is open for tagID, that is an internal invariant violation
// (a crossing fired with nothing armed): it is treated as a zero-duration
// closure at lap 0 rather than silently dropped, and logged once.
func (e *Engine) CloseLap(tagID int, raw, closedAt float64) *LapScore {
	ls, ok := e.open[tagID]
	if !ok {
		e.log.Warn("close_lap with no open lap", "tag_id", tagID)
		ls = &LapScore{TagID: tagID, Lap: 0}
		raw = 0
	} else {
		delete(e.open, tagID)
	}
	ls.Raw = raw
	ls.ClosedAt = closedAt
	ls.closed = true
	e.closed[tagID] = append(e.closed[tagID], ls)
	e.pushFeed(feedLine(e.names[tagID], ls))
	return ls
}

func feedLine(name string, ls *LapScore) string {
	if ls.Void {
		return name + " voided lap " + strconv.Itoa(ls.Lap)
	}
	return name + " closed lap " + strconv.Itoa(ls.Lap)
}

// WallHit charges a wall-hit penalty against tagID's open lap.
func (e *Engine) WallHit(tagID int) {
	ls := e.open[tagID]
	if ls == nil {
		return
	}
	ls.Penalty += e.current.WallHitPenalty
	ls.WallHits++
	e.pushFeed(e.names[tagID] + " hit the wall")
}

// CarCollision charges the attacker's open lap and credits the victim's.
func (e *Engine) CarCollision(attacker, victim int) {
	if ls := e.open[attacker]; ls != nil {
		ls.Penalty += e.current.CarCollisionAttackerPenalty
		ls.AttackerEvents++
	}
	if ls := e.open[victim]; ls != nil {
		ls.Bonus += e.current.CarCollisionVictimBonus
		ls.VictimEvents++
	}
	e.pushFeed(e.names[attacker] + " collided with " + e.names[victim])
}

// CornerCut charges (or voids, per CornerCutVoidLap) tagID's open lap for a
// missed checkpoint.
func (e *Engine) CornerCut(tagID int) {
	ls := e.open[tagID]
	if ls == nil {
		return
	}
	ls.CornerCuts++
	if e.defaults.CornerCutVoidLap {
		ls.Void = true
		return
	}
	ls.Penalty += e.defaults.CornerCutPenalty
}

// Overspeed charges tagID's open lap the first time it is called within
// that lap; subsequent calls before the next open are ignored.
func (e *Engine) Overspeed(tagID int) {
	ls := e.open[tagID]
	if ls == nil || ls.overspeedCharged {
		return
	}
	ls.Penalty += e.defaults.PitZoneOverspeedPenalty
	ls.Overspeed = true
	ls.overspeedCharged = true
}

// LeaderboardRow is one entry of the ranked leaderboard.
type LeaderboardRow struct {
	TagID        int
	Name         string
	BestELP      float64
	BestRaw      float64
	BestLap      int
	LapsDone     int
	Qualifies    bool
	PenaltyTotal float64
	BonusTotal   float64
}

// Leaderboard ranks every tag with at least one non-void closed lap by
// (best ELP, best lap) ascending.
func (e *Engine) Leaderboard() []LeaderboardRow {
	var rows []LeaderboardRow
	for tagID, laps := range e.closed {
		best := bestLap(laps)
		if best == nil {
			continue
		}
		var penalty, bonus float64
		lapsDone := 0
		for _, l := range laps {
			penalty += l.Penalty
			bonus += l.Bonus
			if !l.Void {
				lapsDone++
			}
		}
		rows = append(rows, LeaderboardRow{
			TagID:        tagID,
			Name:         e.names[tagID],
			BestELP:      best.ELP(),
			BestRaw:      best.Raw,
			BestLap:      best.Lap,
			LapsDone:     lapsDone,
			Qualifies:    lapsDone >= e.defaults.MinLapsToQualify,
			PenaltyTotal: penalty,
			BonusTotal:   bonus,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].BestELP != rows[j].BestELP {
			return rows[i].BestELP < rows[j].BestELP
		}
		return rows[i].BestLap < rows[j].BestLap
	})
	return rows
}

// bestLap picks the non-void lap with minimum (ELP, closed-at).
func bestLap(laps []*LapScore) *LapScore {
	var best *LapScore
	for _, l := range laps {
		if l.Void {
			continue
		}
		if best == nil {
			best = l
			continue
		}
		if l.ELP() < best.ELP() || (l.ELP() == best.ELP() && l.ClosedAt < best.ClosedAt) {
			best = l
		}
	}
	return best
}

// History returns the closed laps recorded for tagID.
func (e *Engine) History(tagID int) []*LapScore {
	return e.closed[tagID]
}

// LapsDone reports the count of closed, non-voided laps for tagID.
func (e *Engine) LapsDone(tagID int) int {
	n := 0
	for _, l := range e.closed[tagID] {
		if !l.Void {
			n++
		}
	}
	return n
}

// Feed returns the last n incident lines, oldest first.
func (e *Engine) Feed(n int) []string {
	if n <= 0 || n > len(e.feed) {
		n = len(e.feed)
	}
	return append([]string(nil), e.feed[len(e.feed)-n:]...)
}

func (e *Engine) pushFeed(line string) {
	e.feed = append(e.feed, line)
	if len(e.feed) > e.feedCap {
		e.feed = e.feed[len(e.feed)-e.feedCap:]
	}
}

// Reset clears all lap history, open laps, and the incident feed, and
// restores the compile-time default configuration.
func (e *Engine) Reset() {
	e.open = map[int]*LapScore{}
	e.closed = map[int][]*LapScore{}
	e.feed = nil
	e.current = DynamicConfig{
		WallHitPenalty:              e.defaults.WallHitPenalty,
		CarCollisionAttackerPenalty: e.defaults.CarCollisionAttackerPenalty,
		CarCollisionVictimBonus:     e.defaults.CarCollisionVictimBonus,
		TotalLaps:                   e.defaults.TotalLaps,
	}
}
