// Package collision detects car-to-car contact, wall proximity, stationary
// "ghosting", and implausible speed samples from a per-frame snapshot of all
// active, racing tags.
package collision

import (
	"math"
	"sort"
	"strconv"

	"xrace/geometry"
)

// CarSnapshot is one tag's state as of the current frame.
type CarSnapshot struct {
	X, Y   float64
	Speed  float64
	Lap    int
	Racing bool
}

// EventKind names the two kinds of incident the engine emits.
type EventKind string

const (
	EventCar  EventKind = "car"
	EventWall EventKind = "wall"
)

// Event is one incident produced by Update, in emission order (car pairs
// before wall hits).
type Event struct {
	Kind     EventKind
	Attacker int
	Victim   int
	TagID    int
	Boundary string // "outer" or "inner", set only for EventWall
}

// ScoringSink is the narrow slice of the scoring engine the collision
// engine is allowed to mutate.
type ScoringSink interface {
	WallHit(tagID int)
	CarCollision(attacker, victim int)
}

const speedWindowCap = 300

type pairKey struct{ a, b int }

func makePairKey(x, y int) pairKey {
	if x > y {
		x, y = y, x
	}
	return pairKey{x, y}
}

// Config holds the tunable thresholds, all from the static configuration.
type Config struct {
	CarCollisionDistanceCM float64
	CarCollisionCooldown   float64
	SpeedDiffThreshold     float64
	WallToleranceCM        float64
	WallCollisionCooldown  float64
	GhostingSpeedThreshold float64
	GhostingTimeThreshold  float64
	MaxPlausibleSpeedCMS   float64
}

// Engine is the global, single-writer collision detector. Singleton; reset
// on race reset.
type Engine struct {
	cfg     Config
	scoring ScoringSink
	outer   [][2]float64
	inner   [][2]float64

	lastSnapshot map[int]CarSnapshot
	pairLast     map[pairKey]float64
	wallLast     map[int]float64
	belowSince   map[int]float64
	ghosted      map[int]bool

	speedWindow []float64

	incidents []string
	anomalies []string

	economy map[int]*Economy
}

// Economy is one tag's lifetime collision-point economy: every car
// collision it has ever been party to, whether as the attacker
// ("initiated") or the victim ("received"), tallied across the whole
// race rather than reset per lap.
type Economy struct {
	TotalCollisions     int
	CollisionsInitiated int
	CollisionsReceived  int
}

// New constructs a collision engine bound to a scoring sink and track
// polygons.
func New(cfg Config, scoring ScoringSink, outer, inner [][2]float64) *Engine {
	return &Engine{
		cfg:          cfg,
		scoring:      scoring,
		outer:        outer,
		inner:        inner,
		lastSnapshot: map[int]CarSnapshot{},
		pairLast:     map[pairKey]float64{},
		wallLast:     map[int]float64{},
		belowSince:   map[int]float64{},
		ghosted:      map[int]bool{},
		economy:      map[int]*Economy{},
	}
}

// recordCollision tallies a car collision into both parties' lifetime
// collision-point economy.
func (e *Engine) recordCollision(attacker, victim int) {
	ae := e.economyFor(attacker)
	ae.TotalCollisions++
	ae.CollisionsInitiated++

	ve := e.economyFor(victim)
	ve.TotalCollisions++
	ve.CollisionsReceived++
}

func (e *Engine) economyFor(tagID int) *Economy {
	ec, ok := e.economy[tagID]
	if !ok {
		ec = &Economy{}
		e.economy[tagID] = ec
	}
	return ec
}

// Economy returns tagID's lifetime collision-point economy. The zero value
// is returned for a tag that has never been party to a car collision.
func (e *Engine) Economy(tagID int) Economy {
	if ec, ok := e.economy[tagID]; ok {
		return *ec
	}
	return Economy{}
}

// Update ingests one frame's snapshot of all active tags and returns the
// incidents it produced.
func (e *Engine) Update(snapshot map[int]CarSnapshot, now float64) []Event {
	e.ingest(snapshot, now)

	ids := make([]int, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
		e.updateGhost(id, snapshot[id].Speed, now)
	}
	sort.Ints(ids)

	var events []Event
	events = append(events, e.checkPairs(ids, now)...)
	events = append(events, e.checkWalls(ids, now)...)
	return events
}

func (e *Engine) ingest(snapshot map[int]CarSnapshot, now float64) {
	for id, s := range snapshot {
		e.lastSnapshot[id] = s
		if s.Speed > 0 {
			e.speedWindow = append(e.speedWindow, s.Speed)
			if len(e.speedWindow) > speedWindowCap {
				e.speedWindow = e.speedWindow[len(e.speedWindow)-speedWindowCap:]
			}
		}
		if s.Speed > e.cfg.MaxPlausibleSpeedCMS {
			e.anomalies = append(e.anomalies, e.names(id)+" anomalous speed")
		}
	}
	_ = now
}

func (e *Engine) windowMean() float64 {
	if len(e.speedWindow) == 0 {
		return 1
	}
	var sum float64
	for _, v := range e.speedWindow {
		sum += v
	}
	return sum / float64(len(e.speedWindow))
}

func (e *Engine) updateGhost(id int, speed, now float64) {
	threshold := e.windowMean() * e.cfg.GhostingSpeedThreshold
	if speed < threshold {
		since, tracking := e.belowSince[id]
		if !tracking {
			e.belowSince[id] = now
			e.ghosted[id] = false
			return
		}
		e.ghosted[id] = now-since > e.cfg.GhostingTimeThreshold
		return
	}
	delete(e.belowSince, id)
	e.ghosted[id] = false
}

func (e *Engine) checkPairs(ids []int, now float64) []Event {
	var events []Event
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := ids[i], ids[j]
			sa, sb := e.lastSnapshot[a], e.lastSnapshot[b]
			if !sa.Racing || !sb.Racing || e.ghosted[a] || e.ghosted[b] {
				continue
			}
			dist := math.Hypot(sa.X-sb.X, sa.Y-sb.Y)
			if dist > e.cfg.CarCollisionDistanceCM {
				continue
			}
			key := makePairKey(a, b)
			if last, ok := e.pairLast[key]; ok && now-last < e.cfg.CarCollisionCooldown {
				continue
			}
			e.pairLast[key] = now

			// ids is sorted ascending and i<j, so a<b always: the lower
			// tag id is already the default attacker/victim order below,
			// which is the tie-break for a sub-threshold speed difference.
			attacker, victim := a, b
			if math.Abs(sa.Speed-sb.Speed) >= e.cfg.SpeedDiffThreshold && sb.Speed > sa.Speed {
				attacker, victim = b, a
			}
			e.scoring.CarCollision(attacker, victim)
			e.recordCollision(attacker, victim)
			e.incidents = append(e.incidents, e.names(attacker)+" hit "+e.names(victim))
			events = append(events, Event{Kind: EventCar, Attacker: attacker, Victim: victim})
		}
	}
	return events
}

func (e *Engine) checkWalls(ids []int, now float64) []Event {
	var events []Event
	for _, id := range ids {
		s := e.lastSnapshot[id]
		if !s.Racing {
			continue
		}
		distOuter := geometry.PolylineDistance(s.X, s.Y, e.outer)
		distInner := geometry.PolylineDistance(s.X, s.Y, e.inner)

		boundary := ""
		best := math.Inf(1)
		if distOuter <= e.cfg.WallToleranceCM && distOuter < best {
			boundary, best = "outer", distOuter
		}
		if distInner <= e.cfg.WallToleranceCM && distInner < best {
			boundary, best = "inner", distInner
		}
		if boundary == "" {
			continue
		}
		if last, ok := e.wallLast[id]; ok && now-last < e.cfg.WallCollisionCooldown {
			continue
		}
		e.wallLast[id] = now
		e.scoring.WallHit(id)
		e.incidents = append(e.incidents, e.names(id)+" hit the "+boundary+" wall")
		events = append(events, Event{Kind: EventWall, TagID: id, Boundary: boundary})
	}
	return events
}

func (e *Engine) names(id int) string {
	return "tag " + strconv.Itoa(id)
}

// Incidents returns the append-only human-readable incident log.
func (e *Engine) Incidents() []string { return append([]string(nil), e.incidents...) }

// Anomalies returns the append-only speed-anomaly log.
func (e *Engine) Anomalies() []string { return append([]string(nil), e.anomalies...) }

// Reset clears all derived caches, the speed window, and both logs.
func (e *Engine) Reset() {
	e.lastSnapshot = map[int]CarSnapshot{}
	e.pairLast = map[pairKey]float64{}
	e.wallLast = map[int]float64{}
	e.belowSince = map[int]float64{}
	e.ghosted = map[int]bool{}
	e.speedWindow = nil
	e.incidents = nil
	e.anomalies = nil
	e.economy = map[int]*Economy{}
}
