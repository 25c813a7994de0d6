// Package lap implements the per-tag start-line crossing state machine:
// arming, lap open/close detection with a crossing cooldown, checkpoint
// validation, and the lap-1 pit-zone overspeed check.
package lap

import "xrace/scoring"

// State is one of the lap engine's lifecycle states.
type State string

const (
	StateIdle     State = "idle"
	StateArmed    State = "armed"
	StateRacing   State = "racing"
	StateFinished State = "finished"
)

// EventKind names one of the events a crossing can emit.
type EventKind string

const (
	EventRaceStart  EventKind = "race_start"
	EventLapDone    EventKind = "lap_done"
	EventRaceFinish EventKind = "race_finish"
)

// Event is one lap-lifecycle transition produced by Update. ClosedLap is set
// on lap_done and race_finish, carrying the lap just closed for the caller
// to forward to persistence.
type Event struct {
	Kind      EventKind
	TagID     int
	Lap       int
	Raw       float64
	ClosedLap *scoring.LapScore
}

// ScoringSink is the narrow slice of the scoring engine the lap engine is
// allowed to mutate: it may open and close its own tag's lap, and report a
// missed checkpoint or pit overspeed against the currently open lap.
type ScoringSink interface {
	OpenLap(tagID, lapNumber int)
	CloseLap(tagID int, raw, closedAt float64) *scoring.LapScore
	CornerCut(tagID int)
	Overspeed(tagID int)
}

// Orientation selects which axis the start line gates on.
type Orientation string

const (
	OrientationVertical   Orientation = "vertical"
	OrientationHorizontal Orientation = "horizontal"
)

const pitZoneRadiusCM = 50.0

// Engine is one tag's lap state machine. Created at registration, reset on
// race reset. Not safe for concurrent use; callers serialize access.
type Engine struct {
	TagID   int
	scoring ScoringSink

	Orientation           Orientation
	StartLineX            float64
	StartLineY1           float64
	StartLineY2           float64
	LineCrossingThreshold float64
	MinLapTime            float64
	TotalLaps             int
	Checkpoints           [][2]float64
	CheckpointRadiusCM    float64
	PitZoneMaxSpeedCMS    float64

	state         State
	currentLap    int
	lapsCompleted int
	lapStart      float64

	hasSide  bool
	lastSide bool

	hasLastCross bool
	lastCross    float64

	touched        map[int]bool
	overspeedFired bool

	RawDurations []float64
}

// New constructs an idle lap engine for one tag.
func New(tagID int, scoring ScoringSink) *Engine {
	return &Engine{TagID: tagID, scoring: scoring, state: StateIdle, touched: map[int]bool{}}
}

// State reports the engine's current lifecycle state.
func (e *Engine) State() State { return e.state }

// CurrentLap reports the 1-based lap currently open, or 0 before racing.
func (e *Engine) CurrentLap() int { return e.currentLap }

// LapsCompleted reports the number of laps this engine has closed.
func (e *Engine) LapsCompleted() int { return e.lapsCompleted }

// ElapsedCurrentLap reports the time since the current lap opened, or 0
// before racing starts.
func (e *Engine) ElapsedCurrentLap(now float64) float64 {
	if e.state != StateRacing {
		return 0
	}
	return now - e.lapStart
}

// Arm transitions the engine from Idle to Armed so the next valid crossing
// starts the race.
func (e *Engine) Arm() {
	e.state = StateArmed
}

// Reset returns the engine to Idle and clears all race-scoped state.
func (e *Engine) Reset() {
	e.state = StateIdle
	e.currentLap = 0
	e.lapsCompleted = 0
	e.lapStart = 0
	e.hasSide = false
	e.hasLastCross = false
	e.touched = map[int]bool{}
	e.overspeedFired = false
	e.RawDurations = nil
}

// Update folds in one solved fix and returns any lifecycle events it
// produced. x, y, speed are the tag's current smoothed position and speed;
// now is the fix's timestamp in seconds.
func (e *Engine) Update(x, y, speed, now float64) []Event {
	side := e.sideOf(x, y)
	crossing := e.hasSide && side != e.lastSide && e.withinBand(x, y)
	e.hasSide = true
	e.lastSide = side

	var events []Event
	if crossing && e.acceptCrossing(now) {
		events = e.handleCrossing(now)
	}

	e.checkCheckpoints(x, y)
	e.checkPitOverspeed(x, y, speed)

	return events
}

// acceptCrossing applies the cooldown and lifecycle guards, in order, and
// records the crossing instant if accepted.
func (e *Engine) acceptCrossing(now float64) bool {
	if e.hasLastCross && now-e.lastCross < e.MinLapTime {
		return false
	}
	if e.state != StateRacing && e.state != StateArmed {
		return false
	}
	e.lastCross = now
	e.hasLastCross = true
	return true
}

func (e *Engine) handleCrossing(now float64) []Event {
	switch e.state {
	case StateArmed:
		e.state = StateRacing
		e.currentLap = 1
		e.openLap(now)
		return []Event{{Kind: EventRaceStart, TagID: e.TagID, Lap: e.currentLap}}

	case StateRacing:
		raw := now - e.lapStart
		e.applyMissedCheckpoints()
		closed := e.scoring.CloseLap(e.TagID, raw, now)
		e.RawDurations = append(e.RawDurations, raw)
		e.lapsCompleted++
		closedLap := e.currentLap

		if e.lapsCompleted >= e.TotalLaps {
			e.state = StateFinished
			return []Event{{Kind: EventRaceFinish, TagID: e.TagID, Lap: closedLap, Raw: raw, ClosedLap: closed}}
		}
		e.currentLap++
		e.openLap(now)
		return []Event{{Kind: EventLapDone, TagID: e.TagID, Lap: closedLap, Raw: raw, ClosedLap: closed}}
	}
	return nil
}

func (e *Engine) openLap(now float64) {
	e.lapStart = now
	e.touched = map[int]bool{}
	e.overspeedFired = false
	e.scoring.OpenLap(e.TagID, e.currentLap)
}

func (e *Engine) applyMissedCheckpoints() {
	if len(e.Checkpoints) == 0 {
		return
	}
	for i := range e.Checkpoints {
		if !e.touched[i] {
			e.scoring.CornerCut(e.TagID)
		}
	}
}

func (e *Engine) checkCheckpoints(x, y float64) {
	if e.state != StateRacing || len(e.Checkpoints) == 0 {
		return
	}
	for i, cp := range e.Checkpoints {
		if e.touched[i] {
			continue
		}
		dx, dy := x-cp[0], y-cp[1]
		if dx*dx+dy*dy <= e.CheckpointRadiusCM*e.CheckpointRadiusCM {
			e.touched[i] = true
		}
	}
}

func (e *Engine) checkPitOverspeed(x, y, speed float64) {
	if e.state != StateRacing || e.currentLap != 1 || e.overspeedFired {
		return
	}
	if e.PitZoneMaxSpeedCMS <= 0 || speed <= e.PitZoneMaxSpeedCMS {
		return
	}
	if e.distanceToLine(x, y) > pitZoneRadiusCM || !e.withinBand(x, y) {
		return
	}
	e.scoring.Overspeed(e.TagID)
	e.overspeedFired = true
}

func (e *Engine) sideOf(x, y float64) bool {
	if e.Orientation == OrientationHorizontal {
		return y < e.StartLineY1
	}
	return x < e.StartLineX
}

func (e *Engine) withinBand(x, y float64) bool {
	if e.Orientation == OrientationHorizontal {
		return x >= e.StartLineX-e.LineCrossingThreshold && x <= e.StartLineX+e.LineCrossingThreshold
	}
	return y >= e.StartLineY1 && y <= e.StartLineY2
}

func (e *Engine) distanceToLine(x, y float64) float64 {
	if e.Orientation == OrientationHorizontal {
		return abs(y - e.StartLineY1)
	}
	return abs(x - e.StartLineX)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
