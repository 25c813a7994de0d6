package core

// Outbound message shapes, matching the wire formats the ingress/broadcast
// surface contracts with observer clients.

type pointJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type trackJSON struct {
	OuterPoints [][2]float64 `json:"outer_points"`
	InnerPoints [][2]float64 `json:"inner_points"`
}

type serverInfoJSON struct {
	TagCount    int `json:"tag_count"`
	AnchorCount int `json:"anchor_count"`
}

type connectionMessage struct {
	Type       string               `json:"type"`
	Status     string               `json:"status"`
	ServerInfo serverInfoJSON       `json:"server_info"`
	Anchors    map[string]pointJSON `json:"anchors"`
	Track      trackJSON            `json:"track"`
	Stats      statsMessage         `json:"stats"`
}

type tagPositionMessage struct {
	Type        string   `json:"type"`
	TagID       int      `json:"tag_id"`
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	RawX        float64  `json:"raw_x"`
	RawY        float64  `json:"raw_y"`
	Range       []int    `json:"range"`
	Speed       float64  `json:"speed"`
	SpeedCMS    float64  `json:"speed_cms"`
	SpeedUnit   string   `json:"speed_unit"`
	Quality     string   `json:"quality"`
	AnchorCount int      `json:"anchor_count"`
	Timestamp   float64  `json:"timestamp"`
	GameEvents  []string `json:"game_events"`
}

type lapInfoJSON struct {
	State      string  `json:"state"`
	CurrentLap int     `json:"current_lap"`
	LapsDone   int     `json:"laps_done"`
	Elapsed    float64 `json:"elapsed"`
}

type scoringSummaryJSON struct {
	BestELP   float64   `json:"best_elp"`
	LapsDone  int       `json:"laps_done"`
	Qualifies bool      `json:"qualifies"`
	History   []float64 `json:"history"`
}

type collisionEconomyJSON struct {
	TotalCollisions     int `json:"total_collisions"`
	CollisionsInitiated int `json:"collisions_initiated"`
	CollisionsReceived  int `json:"collisions_received"`
}

type carStateJSON struct {
	TagID         int                  `json:"tag_id"`
	Name          string               `json:"name"`
	X             float64              `json:"x"`
	Y             float64              `json:"y"`
	RawX          float64              `json:"raw_x"`
	RawY          float64              `json:"raw_y"`
	Speed         float64              `json:"speed"`
	SpeedUnit     string               `json:"speed_unit"`
	SpeedCMS      float64              `json:"speed_cms"`
	Quality       string               `json:"quality"`
	AnchorCount   int                  `json:"anchor_count"`
	Trail         [][2]float64         `json:"trail"`
	LapInfo       lapInfoJSON          `json:"lap_info"`
	Scoring       scoringSummaryJSON   `json:"scoring"`
	WallHits      int                  `json:"wall_hits"`
	CarCollisions int                  `json:"car_collisions"`
	Economy       collisionEconomyJSON `json:"collision_economy"`
}

type leaderboardRowJSON struct {
	TagID        int     `json:"tag_id"`
	Name         string  `json:"name"`
	BestELP      float64 `json:"best_elp"`
	BestRaw      float64 `json:"best_raw"`
	BestLap      int     `json:"best_lap"`
	LapsDone     int     `json:"laps_done"`
	Qualifies    bool    `json:"qualifies"`
	PenaltyTotal float64 `json:"penalty_total"`
	BonusTotal   float64 `json:"bonus_total"`
}

type raceConfigJSON struct {
	WallHitPenalty  float64 `json:"wall_hit_penalty"`
	AttackerPenalty float64 `json:"attacker_penalty"`
	VictimBonus     float64 `json:"victim_bonus"`
}

type stateUpdateMessage struct {
	Type        string               `json:"type"`
	Timestamp   float64              `json:"timestamp"`
	RaceActive  bool                 `json:"race_active"`
	RaceArmed   bool                 `json:"race_armed"`
	TotalLaps   int                  `json:"total_laps"`
	RaceConfig  raceConfigJSON       `json:"race_config"`
	Cars        []carStateJSON       `json:"cars"`
	Leaderboard []leaderboardRowJSON `json:"leaderboard"`
	Feed        []string             `json:"feed"`
}

type adminEventMessage struct {
	Type       string         `json:"type"`
	Event      string         `json:"event"`
	TotalLaps  int            `json:"total_laps,omitempty"`
	RaceConfig raceConfigJSON `json:"race_config,omitempty"`
}

type pongMessage struct {
	Type      string  `json:"type"`
	Timestamp float64 `json:"timestamp"`
}

type statsMessage struct {
	Type            string  `json:"type"`
	UDPPacketsTotal int     `json:"udp_packets_total"`
	UDPValid        int     `json:"udp_valid"`
	UDPInvalid      int     `json:"udp_invalid"`
	WSMessagesSent  int     `json:"ws_messages_sent"`
	WSClientsTotal  int     `json:"ws_clients_total"`
	TagsSeen        int     `json:"tags_seen"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
}
