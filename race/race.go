// Package race wraps the scoring engine and the per-tag lap engines behind
// the single set of operations an admin console or ingress pipeline needs:
// registration, arming, per-packet updates, and aggregate queries.
package race

import (
	"xrace/lap"
	"xrace/scoring"
)

// Config is the dynamic, admin-overridable subset of the race setup. A
// zero or negative field falls back to its compile-time default.
type Config struct {
	WallHitPenalty              float64
	CarCollisionAttackerPenalty float64
	CarCollisionVictimBonus     float64
	TotalLaps                   int
}

// Info is a per-tag snapshot for the broadcast state message.
type Info struct {
	TagID          int
	State          lap.State
	CurrentLap     int
	LapsDone       int
	ElapsedCurrent float64
}

// Manager coordinates the scoring engine and every tag's lap engine, and
// tracks the overall race clock.
type Manager struct {
	scoring *scoring.Engine
	engines map[int]*lap.Engine

	raceActive   bool
	raceStart    float64
	raceEnd      float64
	hasRaceStart bool
}

// New constructs a manager bound to a scoring engine.
func New(scoring *scoring.Engine) *Manager {
	return &Manager{scoring: scoring, engines: map[int]*lap.Engine{}}
}

// Register creates a lap engine for tagID and records its display name with
// the scoring engine. geometry is captured by the caller via the returned
// engine's exported fields before the race is armed.
func (m *Manager) Register(tagID int, name string) *lap.Engine {
	m.scoring.Register(tagID, name)
	e := lap.New(tagID, m.scoring)
	m.engines[tagID] = e
	return e
}

// AdminStart applies the dynamic configuration, clears previous race state,
// and arms every registered lap engine.
func (m *Manager) AdminStart(cfg Config) scoring.DynamicConfig {
	m.scoring.Reset()
	merged := m.scoring.ApplyConfig(scoring.DynamicConfig{
		WallHitPenalty:              cfg.WallHitPenalty,
		CarCollisionAttackerPenalty: cfg.CarCollisionAttackerPenalty,
		CarCollisionVictimBonus:     cfg.CarCollisionVictimBonus,
		TotalLaps:                   cfg.TotalLaps,
	})
	m.resetEngines(merged.TotalLaps)
	for _, e := range m.engines {
		e.Arm()
	}
	m.raceActive = false
	m.hasRaceStart = false
	m.raceStart = 0
	m.raceEnd = 0
	return merged
}

func (m *Manager) resetEngines(totalLaps int) {
	for _, e := range m.engines {
		e.Reset()
		e.TotalLaps = totalLaps
	}
}

// Update dispatches one fix to tagID's lap engine. It manages the race
// clock: the first race_start anywhere sets race_active and records the
// start instant; once every engine has finished, race_active clears and the
// end instant is recorded.
func (m *Manager) Update(tagID int, x, y, speed, now float64) []lap.Event {
	e, ok := m.engines[tagID]
	if !ok {
		return nil
	}
	events := e.Update(x, y, speed, now)
	for _, ev := range events {
		if ev.Kind == lap.EventRaceStart && !m.hasRaceStart {
			m.raceActive = true
			m.hasRaceStart = true
			m.raceStart = now
		}
	}
	if m.hasRaceStart && m.raceActive && m.allFinished() {
		m.raceActive = false
		m.raceEnd = now
	}
	return events
}

func (m *Manager) allFinished() bool {
	if len(m.engines) == 0 {
		return false
	}
	for _, e := range m.engines {
		if e.State() != lap.StateFinished {
			return false
		}
	}
	return true
}

// GetInfo returns a per-tag snapshot as of now.
func (m *Manager) GetInfo(tagID int, now float64) (Info, bool) {
	e, ok := m.engines[tagID]
	if !ok {
		return Info{}, false
	}
	return Info{
		TagID:          tagID,
		State:          e.State(),
		CurrentLap:     e.CurrentLap(),
		LapsDone:       e.LapsCompleted(),
		ElapsedCurrent: e.ElapsedCurrentLap(now),
	}, true
}

// Leaderboard returns the ranked scoring leaderboard.
func (m *Manager) Leaderboard() []scoring.LeaderboardRow {
	return m.scoring.Leaderboard()
}

// Active reports whether a race is currently in progress.
func (m *Manager) Active() bool { return m.raceActive }

// Reset resets every lap engine, the scoring engine, and the race clock to
// Idle / empty.
func (m *Manager) Reset() {
	for _, e := range m.engines {
		e.Reset()
	}
	m.scoring.Reset()
	m.raceActive = false
	m.hasRaceStart = false
	m.raceStart = 0
	m.raceEnd = 0
}
