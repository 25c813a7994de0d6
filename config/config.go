// Package config loads the engine's static configuration: a single
// immutable record read from a YAML file via viper, then re-decoded through
// yaml.v3 into a typed struct, following the two-stage pattern used
// elsewhere in this codebase's ecosystem for config loading.
package config

import (
	"fmt"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"xrace/geometry"
	"xrace/models"
)

// AnchorSpec is one configured anchor's id and planar coordinates.
type AnchorSpec struct {
	ID int     `yaml:"id"`
	X  float64 `yaml:"x"`
	Y  float64 `yaml:"y"`
}

// CheckpointSpec is one configured checkpoint's coordinates.
type CheckpointSpec struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Config is the full static configuration, per spec §6's table. Every field
// has a default except Anchors, which is boot-fatal if absent — the
// deployment's anchor geometry never silently falls back. The start-line
// fields do fall back to their defaults when the file omits them.
type Config struct {
	UDPPort int `yaml:"udp_port"`
	WSPort  int `yaml:"ws_port"`

	Anchors     []AnchorSpec `yaml:"anchor_positions"`
	TagCount    int          `yaml:"tag_count"`
	AnchorCount int          `yaml:"anchor_count"`

	TotalLaps        int     `yaml:"total_laps"`
	MinLapsToQualify int     `yaml:"min_laps_to_qualify"`
	MinLapTime       float64 `yaml:"min_lap_time"`

	StartLineOrientation  string  `yaml:"start_line_orientation"`
	StartLineX            float64 `yaml:"start_line_x"`
	StartLineY1           float64 `yaml:"start_line_y1"`
	StartLineY2           float64 `yaml:"start_line_y2"`
	LineCrossingThreshold float64 `yaml:"line_crossing_threshold"`

	CarCollisionDistanceCM float64 `yaml:"car_collision_distance_cm"`
	CarCollisionCooldown   float64 `yaml:"car_collision_cooldown"`
	SpeedDiffThreshold     float64 `yaml:"speed_diff_threshold"`

	WallToleranceCM       float64 `yaml:"wall_tolerance_cm"`
	WallCollisionCooldown float64 `yaml:"wall_collision_cooldown"`

	GhostingSpeedThreshold float64 `yaml:"ghosting_speed_threshold"`
	GhostingTimeThreshold  float64 `yaml:"ghosting_time_threshold"`
	MaxPlausibleSpeedCMS   float64 `yaml:"max_plausible_speed_cm_s"`

	WallHitPenalty              float64 `yaml:"wall_hit_penalty"`
	CarCollisionAttackerPenalty float64 `yaml:"car_collision_attacker_penalty"`
	CarCollisionVictimBonus     float64 `yaml:"car_collision_victim_bonus"`

	CornerCutPenalty   float64          `yaml:"corner_cut_penalty"`
	CornerCutVoidLap   bool             `yaml:"corner_cut_void_lap"`
	Checkpoints        []CheckpointSpec `yaml:"checkpoints"`
	CheckpointRadiusCM float64          `yaml:"checkpoint_radius_cm"`

	PitZoneMaxSpeedCMS      float64 `yaml:"pit_zone_max_speed_cm_s"`
	PitZoneOverspeedPenalty float64 `yaml:"pit_zone_overspeed_penalty"`

	KalmanProcessNoise     float64 `yaml:"kalman_process_noise"`
	KalmanMeasurementNoise float64 `yaml:"kalman_measurement_noise"`

	TrailLength         int     `yaml:"trail_length"`
	TagTimeout          float64 `yaml:"tag_timeout"`
	SpeedAverageSamples int     `yaml:"speed_average_samples"`

	TrackOuter []CheckpointSpec `yaml:"track_outer"`
	TrackInner []CheckpointSpec `yaml:"track_inner"`

	PersistenceURL      string  `yaml:"persistence_url"`
	StatsReportInterval float64 `yaml:"stats_report_interval"`
	IncidentFeedLength  int     `yaml:"incident_feed_length"`
}

// Defaults returns the compile-time defaults from spec.md §6, with no
// anchors configured (the caller must supply ANCHOR_POSITIONS).
func Defaults() Config {
	return Config{
		UDPPort:     4210,
		WSPort:      8001,
		TagCount:    6,
		AnchorCount: 4,

		TotalLaps:        10,
		MinLapsToQualify: 3,
		MinLapTime:       3.0,

		StartLineOrientation:  "vertical",
		StartLineX:            100,
		StartLineY1:           30,
		StartLineY2:           70,
		LineCrossingThreshold: 20,

		CarCollisionDistanceCM: 25,
		CarCollisionCooldown:   1.0,
		SpeedDiffThreshold:     10,

		WallToleranceCM:       5,
		WallCollisionCooldown: 0.5,

		GhostingSpeedThreshold: 0.20,
		GhostingTimeThreshold:  3.0,
		MaxPlausibleSpeedCMS:   278,

		WallHitPenalty:              5.0,
		CarCollisionAttackerPenalty: 5.0,
		CarCollisionVictimBonus:     2.0,

		CornerCutPenalty:   3.0,
		CornerCutVoidLap:   false,
		CheckpointRadiusCM: 15,

		PitZoneMaxSpeedCMS:      30.0,
		PitZoneOverspeedPenalty: 2.0,

		KalmanProcessNoise:     0.1,
		KalmanMeasurementNoise: 5.0,

		TrailLength:         30,
		TagTimeout:          5,
		SpeedAverageSamples: 10,

		StatsReportInterval: 60,
		IncidentFeedLength:  200,
	}
}

// Load reads path as YAML via viper, re-marshals the decoded map through
// yaml.v3, and unmarshals it onto the compile-time defaults so any field
// the file omits keeps its default value.
func Load(path string) (Config, error) {
	cfg := Defaults()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	raw, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return Config{}, fmt.Errorf("config: re-marshal: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}

	if len(cfg.Anchors) == 0 {
		return Config{}, fmt.Errorf("config: anchor_positions is required, got none")
	}
	return cfg, nil
}

// AnchorPoints returns the configured anchors as an index-addressable slice
// sized AnchorCount, ready for the positioning solver.
func (c Config) AnchorPoints() []models.Point {
	pts := make([]models.Point, c.AnchorCount)
	for _, a := range c.Anchors {
		if a.ID >= 0 && a.ID < c.AnchorCount {
			pts[a.ID] = models.Point{X: a.X, Y: a.Y}
		}
	}
	return pts
}

// TrackPolygons returns the configured track polygons, or a default oval
// centered on the start line if none were given.
func (c Config) TrackPolygons() (outer, inner [][2]float64) {
	if len(c.TrackOuter) > 0 {
		outer = toPairs(c.TrackOuter)
		inner = toPairs(c.TrackInner)
		return outer, inner
	}
	cx, cy := c.StartLineX, (c.StartLineY1+c.StartLineY2)/2
	return geometry.GenerateOval(cx, cy, 85, 85, 48), geometry.GenerateOval(cx, cy, 55, 55, 48)
}

func toPairs(pts []CheckpointSpec) [][2]float64 {
	out := make([][2]float64, len(pts))
	for i, p := range pts {
		out[i] = [2]float64{p.X, p.Y}
	}
	return out
}
