package core

import (
	"strconv"
	"time"

	"xrace/ingress"
	"xrace/positioning"
	"xrace/race"
	"xrace/scoring"
	"xrace/tagstate"
)

const speedUnit = "cm/s"

func (e *Engine) buildConnectionMessage() connectionMessage {
	anchors := make(map[string]pointJSON, len(e.anchors))
	for i, a := range e.anchors {
		anchors[strconv.Itoa(i)] = pointJSON{X: a.X, Y: a.Y}
	}
	return connectionMessage{
		Type:   "connection",
		Status: "connected",
		ServerInfo: serverInfoJSON{
			TagCount:    e.cfg.TagCount,
			AnchorCount: e.cfg.AnchorCount,
		},
		Anchors: anchors,
		Track:   trackJSON{OuterPoints: e.outer, InnerPoints: e.inner},
		Stats:   e.buildStatsMessage(),
	}
}

func (e *Engine) broadcastTagPosition(tag *tagstate.Tag, pkt ingress.Packet, result positioning.Result, now float64, gameEvents []string) {
	e.hub.Broadcast(tagPositionMessage{
		Type:        "tag_position",
		TagID:       tag.ID,
		X:           tag.X,
		Y:           tag.Y,
		RawX:        tag.RawX,
		RawY:        tag.RawY,
		Range:       pkt.Range,
		Speed:       tag.SpeedCMS,
		SpeedCMS:    tag.SpeedCMS,
		SpeedUnit:   speedUnit,
		Quality:     string(result.Quality),
		AnchorCount: result.ValidAnchors,
		Timestamp:   now,
		GameEvents:  gameEvents,
	})
	e.wsMessagesSent++
}

func (e *Engine) broadcastStateUpdate(now float64) {
	e.hub.Broadcast(e.buildStateUpdateMessage(now))
	e.wsMessagesSent++
}

func (e *Engine) buildStateUpdateMessage(now float64) stateUpdateMessage {
	cfg := e.scoringEngine.CurrentConfig()

	var cars []carStateJSON
	for id := 0; id < e.cfg.TagCount; id++ {
		t, ok := e.tags[id]
		if !ok {
			continue
		}
		info, _ := e.raceMgr.GetInfo(id, now)
		cars = append(cars, e.buildCarState(t, info))
	}

	var rows []leaderboardRowJSON
	for _, r := range e.raceMgr.Leaderboard() {
		rows = append(rows, leaderboardRowJSON{
			TagID: r.TagID, Name: r.Name, BestELP: r.BestELP, BestRaw: r.BestRaw,
			BestLap: r.BestLap, LapsDone: r.LapsDone, Qualifies: r.Qualifies,
			PenaltyTotal: r.PenaltyTotal, BonusTotal: r.BonusTotal,
		})
	}

	return stateUpdateMessage{
		Type:       "state_update",
		Timestamp:  now,
		RaceActive: e.raceMgr.Active(),
		RaceArmed:  e.raceArmed,
		TotalLaps:  cfg.TotalLaps,
		RaceConfig: raceConfigJSON{
			WallHitPenalty:  cfg.WallHitPenalty,
			AttackerPenalty: cfg.CarCollisionAttackerPenalty,
			VictimBonus:     cfg.CarCollisionVictimBonus,
		},
		Cars:        cars,
		Leaderboard: rows,
		Feed:        e.scoringEngine.Feed(50),
	}
}

func (e *Engine) buildCarState(t *tagstate.Tag, info race.Info) carStateJSON {
	trail := make([][2]float64, len(t.Trail))
	for i, p := range t.Trail {
		trail[i] = [2]float64{p.X, p.Y}
	}

	history := e.scoringEngine.History(t.ID)
	var elpHistory []float64
	for _, l := range history {
		elpHistory = append(elpHistory, l.ELP())
	}

	var best *scoring.LapScore
	for _, l := range history {
		if l.Void {
			continue
		}
		if best == nil || l.ELP() < best.ELP() {
			best = l
		}
	}
	bestELP := 0.0
	if best != nil {
		bestELP = best.ELP()
	}

	wallHits, carCollisions := 0, 0
	for _, l := range history {
		wallHits += l.WallHits
		carCollisions += l.AttackerEvents + l.VictimEvents
	}

	economy := e.collisionEngine.Economy(t.ID)

	return carStateJSON{
		TagID: t.ID, Name: t.Name, X: t.X, Y: t.Y, RawX: t.RawX, RawY: t.RawY,
		Speed: t.SpeedCMS, SpeedUnit: speedUnit, SpeedCMS: t.SpeedCMS,
		Quality: string(t.Quality), AnchorCount: t.AnchorCount, Trail: trail,
		LapInfo: lapInfoJSON{
			State: string(info.State), CurrentLap: info.CurrentLap,
			LapsDone: info.LapsDone, Elapsed: info.ElapsedCurrent,
		},
		Scoring: scoringSummaryJSON{
			BestELP: bestELP, LapsDone: e.scoringEngine.LapsDone(t.ID),
			Qualifies: e.scoringEngine.LapsDone(t.ID) >= e.cfg.MinLapsToQualify,
			History:   elpHistory,
		},
		WallHits:      wallHits,
		CarCollisions: carCollisions,
		Economy: collisionEconomyJSON{
			TotalCollisions:     economy.TotalCollisions,
			CollisionsInitiated: economy.CollisionsInitiated,
			CollisionsReceived:  economy.CollisionsReceived,
		},
	}
}

func (e *Engine) buildStatsMessage() statsMessage {
	return statsMessage{
		Type:            "stats",
		UDPPacketsTotal: e.udpTotal,
		UDPValid:        e.udpValid,
		UDPInvalid:      e.udpInvalid,
		WSMessagesSent:  e.wsMessagesSent,
		WSClientsTotal:  e.hub.ClientCount(),
		TagsSeen:        len(e.tagsSeen),
		UptimeSeconds:   e.nowSeconds(time.Now()),
	}
}
