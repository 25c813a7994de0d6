// Package core is the single-writer owner of all domain state: tags, lap
// engines, the scoring and collision engines, and the connected-client
// registry's admin dispatch. Ingress, admin commands, and the stats
// reporter all reach domain state only by enqueuing a closure onto one
// channel, drained by one goroutine — this is realization (a) of the
// concurrency model: a queue into a single state-owner task.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"xrace/broadcast"
	"xrace/collision"
	"xrace/config"
	"xrace/ingress"
	"xrace/lap"
	"xrace/models"
	"xrace/persistence"
	"xrace/positioning"
	"xrace/race"
	"xrace/scoring"
	"xrace/tagstate"
)

// Engine wires every domain component together and serializes all
// mutations through a single channel of closures.
type Engine struct {
	cfg config.Config
	log *slog.Logger

	tags    map[int]*tagstate.Tag
	anchors []models.Point
	outer   [][2]float64
	inner   [][2]float64

	scoringEngine   *scoring.Engine
	raceMgr         *race.Manager
	collisionEngine *collision.Engine

	hub     *broadcast.Hub
	persist *persistence.Sink

	groupMapping map[int]string
	groupID      string
	raceArmed    bool

	mutate chan func()

	start          time.Time
	udpTotal       int
	udpValid       int
	udpInvalid     int
	wsMessagesSent int
	tagsSeen       map[int]bool
}

// New builds an Engine from the static configuration. Call SetHub once the
// broadcast hub exists (it in turn needs the Engine as its AdminHandler),
// then Start to launch the state-owner goroutine.
func New(cfg config.Config, persist *persistence.Sink, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	defaults := scoring.Defaults{
		WallHitPenalty:              cfg.WallHitPenalty,
		CarCollisionAttackerPenalty: cfg.CarCollisionAttackerPenalty,
		CarCollisionVictimBonus:     cfg.CarCollisionVictimBonus,
		CornerCutPenalty:            cfg.CornerCutPenalty,
		CornerCutVoidLap:            cfg.CornerCutVoidLap,
		PitZoneOverspeedPenalty:     cfg.PitZoneOverspeedPenalty,
		TotalLaps:                   cfg.TotalLaps,
		MinLapsToQualify:            cfg.MinLapsToQualify,
	}
	scoringEngine := scoring.New(defaults, cfg.IncidentFeedLength, log)
	raceMgr := race.New(scoringEngine)

	outer, inner := cfg.TrackPolygons()
	collisionEngine := collision.New(collision.Config{
		CarCollisionDistanceCM: cfg.CarCollisionDistanceCM,
		CarCollisionCooldown:   cfg.CarCollisionCooldown,
		SpeedDiffThreshold:     cfg.SpeedDiffThreshold,
		WallToleranceCM:        cfg.WallToleranceCM,
		WallCollisionCooldown:  cfg.WallCollisionCooldown,
		GhostingSpeedThreshold: cfg.GhostingSpeedThreshold,
		GhostingTimeThreshold:  cfg.GhostingTimeThreshold,
		MaxPlausibleSpeedCMS:   cfg.MaxPlausibleSpeedCMS,
	}, scoringEngine, outer, inner)

	e := &Engine{
		cfg:             cfg,
		log:             log,
		tags:            map[int]*tagstate.Tag{},
		anchors:         cfg.AnchorPoints(),
		outer:           outer,
		inner:           inner,
		scoringEngine:   scoringEngine,
		raceMgr:         raceMgr,
		collisionEngine: collisionEngine,
		persist:         persist,
		groupMapping:    map[int]string{},
		mutate:          make(chan func(), 256),
		start:           time.Now(),
		tagsSeen:        map[int]bool{},
	}

	var checkpoints [][2]float64
	for _, cp := range cfg.Checkpoints {
		checkpoints = append(checkpoints, [2]float64{cp.X, cp.Y})
	}

	for id := 0; id < cfg.TagCount; id++ {
		name := "tag-" + strconv.Itoa(id)
		e.tags[id] = tagstate.New(id, name, cfg.KalmanProcessNoise, cfg.KalmanMeasurementNoise, cfg.TrailLength, cfg.SpeedAverageSamples)
		le := raceMgr.Register(id, name)
		le.Orientation = lap.Orientation(cfg.StartLineOrientation)
		le.StartLineX = cfg.StartLineX
		le.StartLineY1 = cfg.StartLineY1
		le.StartLineY2 = cfg.StartLineY2
		le.LineCrossingThreshold = cfg.LineCrossingThreshold
		le.MinLapTime = cfg.MinLapTime
		le.TotalLaps = cfg.TotalLaps
		le.Checkpoints = checkpoints
		le.CheckpointRadiusCM = cfg.CheckpointRadiusCM
		le.PitZoneMaxSpeedCMS = cfg.PitZoneMaxSpeedCMS
	}

	return e
}

// SetHub binds the broadcast hub once it has been constructed with this
// Engine as its AdminHandler.
func (e *Engine) SetHub(hub *broadcast.Hub) { e.hub = hub }

// Start launches the state-owner goroutine; it returns when ctx is done.
func (e *Engine) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-e.mutate:
			fn()
		}
	}
}

func (e *Engine) enqueue(fn func()) {
	e.mutate <- fn
}

func (e *Engine) nowSeconds(t time.Time) float64 {
	return t.Sub(e.start).Seconds()
}

// --- ingress.Sink ---

// RecordValid counts one structurally valid inbound packet.
func (e *Engine) RecordValid() {
	e.enqueue(func() { e.udpTotal++; e.udpValid++ })
}

// RecordInvalid counts one dropped, malformed, or unrecognized packet.
func (e *Engine) RecordInvalid() {
	e.enqueue(func() { e.udpTotal++; e.udpInvalid++ })
}

// IngestPacket processes one validated packet: solve, smooth, lap/collision
// dispatch, and the resulting broadcast messages.
func (e *Engine) IngestPacket(pkt ingress.Packet, at time.Time) {
	e.enqueue(func() { e.processPacket(pkt, at) })
}

func (e *Engine) processPacket(pkt ingress.Packet, at time.Time) {
	now := e.nowSeconds(at)

	tag, ok := e.tags[pkt.ID]
	if !ok {
		return
	}

	ranges := make([]float64, e.cfg.AnchorCount)
	for i := 0; i < e.cfg.AnchorCount && i < len(pkt.Range); i++ {
		ranges[i] = float64(pkt.Range[i])
	}
	result, err := positioning.Solve(ranges, pkt.RSSI, e.anchors)
	if err != nil {
		return
	}

	tag.Update(result.X, result.Y, result.Quality, result.ValidAnchors, now)
	e.tagsSeen[pkt.ID] = true

	lapEvents := e.raceMgr.Update(pkt.ID, tag.X, tag.Y, tag.SpeedCMS, now)

	snapshot := map[int]collision.CarSnapshot{}
	for id, t := range e.tags {
		if !t.Active(now, e.cfg.TagTimeout) {
			continue
		}
		info, _ := e.raceMgr.GetInfo(id, now)
		snapshot[id] = collision.CarSnapshot{
			X: t.X, Y: t.Y, Speed: t.SpeedCMS,
			Lap:    info.CurrentLap,
			Racing: info.State == lap.StateRacing,
		}
	}
	collisionEvents := e.collisionEngine.Update(snapshot, now)

	for _, ev := range lapEvents {
		if ev.ClosedLap != nil {
			e.submitToPersistence(pkt.ID, ev.ClosedLap)
		}
	}

	gameEvents := gameEventStrings(lapEvents, collisionEvents)
	e.broadcastTagPosition(tag, pkt, result, now, gameEvents)

	if len(lapEvents) > 0 || len(collisionEvents) > 0 {
		e.broadcastStateUpdate(now)
	}
}

func gameEventStrings(lapEvents []lap.Event, collisionEvents []collision.Event) []string {
	var out []string
	for _, ev := range lapEvents {
		out = append(out, string(ev.Kind))
	}
	for _, ev := range collisionEvents {
		out = append(out, string(ev.Kind))
	}
	return out
}

func (e *Engine) submitToPersistence(tagID int, ls *scoring.LapScore) {
	gp, ok := e.groupMapping[tagID]
	if !ok {
		e.log.Info("persistence: tag has no group mapping, skipping submit", "tag_id", tagID)
		return
	}
	if e.persist == nil {
		return
	}
	e.persist.Submit(persistence.LapRecord{
		GroupID:    gp,
		LapNumber:  ls.Lap,
		RawTime:    ls.Raw,
		ELPTime:    ls.ELP(),
		Penalty:    ls.Penalty,
		Bonus:      ls.Bonus,
		WallHits:   ls.WallHits,
		AtkHits:    ls.AttackerEvents,
		VicHits:    ls.VictimEvents,
		CornerCuts: ls.CornerCuts,
		Voided:     ls.Void,
	})
}

// --- broadcast.AdminHandler ---

// OnConnect sends the one-time connection message to a newly joined client.
func (e *Engine) OnConnect(c *broadcast.Client) {
	e.enqueue(func() {
		e.hub.Unicast(c, e.buildConnectionMessage())
		e.wsMessagesSent++
	})
}

// OnDisconnect is a no-op hook; the hub has already removed the client.
func (e *Engine) OnDisconnect(c *broadcast.Client) {
	e.enqueue(func() {
		e.log.Debug("client disconnected", "remote", c.Remote())
	})
}

// HandlePing replies pong with the current engine clock to c only.
func (e *Engine) HandlePing(c *broadcast.Client) {
	e.enqueue(func() {
		e.hub.Unicast(c, pongMessage{Type: "pong", Timestamp: e.nowSeconds(time.Now())})
	})
}

type raceConfigPayload struct {
	ObjectCollisionTime    float64 `json:"object_collision_time"`
	CollisionCreatingTime  float64 `json:"collision_creating_time"`
	CollisionAbsorbingTime float64 `json:"collision_absorbing_time"`
	TotalLaps              int     `json:"total_laps"`
}

type adminStartPayload struct {
	GroupID    *int              `json:"group_id"`
	TotalLaps  int               `json:"total_laps"`
	TagMap     map[string]string `json:"tag_map"`
	RaceConfig raceConfigPayload `json:"race_config"`
}

// HandleAdminStart applies the dynamic configuration, resets the race, arms
// every lap engine, and broadcasts a race_armed admin event.
func (e *Engine) HandleAdminStart(c *broadcast.Client, raw json.RawMessage) {
	var payload adminStartPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		e.log.Warn("admin_start: malformed payload", "err", err)
		return
	}
	e.enqueue(func() {
		if payload.GroupID != nil {
			e.groupID = fmt.Sprint(*payload.GroupID)
		}
		e.groupMapping = map[int]string{}
		for tagStr, gp := range payload.TagMap {
			id, err := strconv.Atoi(tagStr)
			if err != nil {
				continue
			}
			e.groupMapping[id] = gp
		}

		totalLaps := payload.TotalLaps
		if totalLaps <= 0 {
			totalLaps = payload.RaceConfig.TotalLaps
		}
		merged := e.raceMgr.AdminStart(race.Config{
			WallHitPenalty:              payload.RaceConfig.ObjectCollisionTime,
			CarCollisionAttackerPenalty: payload.RaceConfig.CollisionCreatingTime,
			CarCollisionVictimBonus:     payload.RaceConfig.CollisionAbsorbingTime,
			TotalLaps:                   totalLaps,
		})
		e.collisionEngine.Reset()
		e.raceArmed = true

		e.hub.Broadcast(adminEventMessage{
			Type: "admin_event", Event: "race_armed",
			TotalLaps: merged.TotalLaps,
			RaceConfig: raceConfigJSON{
				WallHitPenalty:  merged.WallHitPenalty,
				AttackerPenalty: merged.CarCollisionAttackerPenalty,
				VictimBonus:     merged.CarCollisionVictimBonus,
			},
		})
		e.wsMessagesSent++
	})
}

// HandleReset clears race state, the collision engine, every tag, the
// group mapping, and restores the default configuration, then broadcasts a
// race_reset admin event.
func (e *Engine) HandleReset(c *broadcast.Client) {
	e.enqueue(func() {
		e.raceMgr.Reset()
		e.collisionEngine.Reset()
		for _, t := range e.tags {
			t.Reset(e.cfg.KalmanProcessNoise, e.cfg.KalmanMeasurementNoise)
		}
		e.groupMapping = map[int]string{}
		e.groupID = ""
		e.raceArmed = false
		e.hub.Broadcast(adminEventMessage{Type: "admin_event", Event: "race_reset"})
		e.wsMessagesSent++
	})
}

// HandleGetStats unicasts a stats snapshot to c.
func (e *Engine) HandleGetStats(c *broadcast.Client) {
	e.enqueue(func() {
		e.hub.Unicast(c, e.buildStatsMessage())
		e.wsMessagesSent++
	})
}

// HandleGetState unicasts a full state_update to c.
func (e *Engine) HandleGetState(c *broadcast.Client) {
	e.enqueue(func() {
		e.hub.Unicast(c, e.buildStateUpdateMessage(e.nowSeconds(time.Now())))
		e.wsMessagesSent++
	})
}
