// Package config loads and normalizes the service configuration.
//
// Values come from a YAML file and are then overlaid with settings stored in
// the database. Normalize runs once before anything is constructed and
// replaces every missing or invalid value with its default, so the service
// always starts.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/thumbtrial/internal/engine"
	"github.com/ayusman/thumbtrial/internal/features"
	"github.com/ayusman/thumbtrial/internal/gesture"
)

// Config holds all tunables. Millisecond fields use the names shared with
// the browser client's config.json.
type Config struct {
	StableMs              float64            `yaml:"stable_ms" json:"stable_ms"`
	DebounceMs            float64            `yaml:"debounce_ms" json:"debounce_ms"`
	ResetMs               float64            `yaml:"reset_ms" json:"reset_ms"`
	ScoreGraceMs          float64            `yaml:"score_grace_ms" json:"score_grace_ms"`
	ScoreSmoothing        float64            `yaml:"score_smoothing" json:"score_smoothing"`
	MaxFPS                float64            `yaml:"max_fps" json:"max_fps"`
	MinScore              float64            `yaml:"min_score" json:"min_score"`
	MinScoreByCategory    map[string]float64 `yaml:"min_score_by_category" json:"min_score_by_category"`
	DenyList              []string           `yaml:"deny_list" json:"deny_list"`
	EmptyGestureTimeoutMs float64            `yaml:"empty_gesture_timeout_ms" json:"empty_gesture_timeout_ms"`
	Features              FeaturesConfig     `yaml:"features" json:"features"`
	Backend               BackendConfig      `yaml:"backend" json:"backend"`
	Video                 VideoConfig        `yaml:"video" json:"video"`

	ParticipantID string `yaml:"participant_id" json:"participant_id"`
	SessionID     string `yaml:"session_id" json:"session_id"`
	ItemID        string `yaml:"item_id" json:"item_id"`

	Server ServerConfig `yaml:"server" json:"-"`
	MQTT   MQTTConfig   `yaml:"mqtt" json:"-"`
	Hooks  []HookConfig `yaml:"hooks" json:"-"`
	Tray   bool         `yaml:"tray" json:"-"`
}

// FeaturesConfig controls the kinematic feature window.
type FeaturesConfig struct {
	WindowMs float64 `yaml:"window_ms" json:"window_ms"`
}

// BackendConfig controls HTTP delivery of trial packets.
type BackendConfig struct {
	LogEndpoint string `yaml:"log_endpoint" json:"log_endpoint"`
}

// VideoConfig controls camera capture.
type VideoConfig struct {
	Device int `yaml:"device" json:"device"`
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// ServerConfig controls the local HTTP server.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
}

// MQTTConfig controls MQTT delivery of trial packets. Disabled when Broker is empty.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
}

// HookConfig names a local command run with each trial packet on stdin.
type HookConfig struct {
	Command   string   `yaml:"command"`
	Args      []string `yaml:"args"`
	TimeoutMs float64  `yaml:"timeout_ms"`
}

// Timeout returns the per-run limit; zero means the sink default.
func (h HookConfig) Timeout() time.Duration {
	return duration(h.TimeoutMs)
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		StableMs:              900,
		DebounceMs:            120,
		ResetMs:               250,
		ScoreGraceMs:          180,
		ScoreSmoothing:        0.35,
		MaxFPS:                30,
		MinScore:              gesture.DefaultMinScore,
		MinScoreByCategory:    gesture.DefaultMinScoreByCategory(),
		DenyList:              []string{},
		EmptyGestureTimeoutMs: 1800,
		Features:              FeaturesConfig{WindowMs: float64(features.DefaultWindow / time.Millisecond)},
		Video:                 VideoConfig{Device: 0, Width: 960, Height: 540},
		Server:                ServerConfig{Addr: ":8080"},
		MQTT:                  MQTTConfig{Topic: "thumbtrial/trials", ClientID: "thumbtrial"},
	}
}

// Load reads a YAML config file on top of the defaults. A missing file is not
// an error; the defaults are returned. The result is normalized.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		cfg.Normalize()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.Normalize()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Normalize()
	return cfg, nil
}

// Normalize replaces missing or invalid values with defaults and merges the
// default per-category thresholds under any configured ones.
func (c *Config) Normalize() {
	d := Default()

	positive(&c.StableMs, d.StableMs)
	nonNegative(&c.DebounceMs, d.DebounceMs)
	nonNegative(&c.ResetMs, d.ResetMs)
	nonNegative(&c.ScoreGraceMs, d.ScoreGraceMs)
	positive(&c.MaxFPS, d.MaxFPS)
	positive(&c.EmptyGestureTimeoutMs, d.EmptyGestureTimeoutMs)
	positive(&c.Features.WindowMs, d.Features.WindowMs)

	if !finite(c.ScoreSmoothing) || c.ScoreSmoothing <= 0 || c.ScoreSmoothing > 1 {
		c.ScoreSmoothing = d.ScoreSmoothing
	}
	if !finite(c.MinScore) || c.MinScore < 0 || c.MinScore > 1 {
		c.MinScore = d.MinScore
	}

	merged := d.MinScoreByCategory
	for name, v := range c.MinScoreByCategory {
		if finite(v) && v >= 0 && v <= 1 {
			merged[name] = v
		}
	}
	c.MinScoreByCategory = merged

	if c.DenyList == nil {
		c.DenyList = []string{}
	}

	if c.Video.Width <= 0 {
		c.Video.Width = d.Video.Width
	}
	if c.Video.Height <= 0 {
		c.Video.Height = d.Video.Height
	}
	if c.Video.Device < 0 {
		c.Video.Device = d.Video.Device
	}

	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = d.MQTT.Topic
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = d.MQTT.ClientID
	}
	if c.MQTT.QoS > 2 {
		c.MQTT.QoS = 0
	}

	hooks := c.Hooks[:0]
	for _, h := range c.Hooks {
		if h.Command == "" {
			continue
		}
		if !finite(h.TimeoutMs) || h.TimeoutMs < 0 {
			h.TimeoutMs = 0
		}
		hooks = append(hooks, h)
	}
	c.Hooks = hooks
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.MinScoreByCategory = make(map[string]float64, len(c.MinScoreByCategory))
	for k, v := range c.MinScoreByCategory {
		out.MinScoreByCategory[k] = v
	}
	out.DenyList = append([]string{}, c.DenyList...)
	out.Hooks = nil
	for _, h := range c.Hooks {
		h.Args = append([]string(nil), h.Args...)
		out.Hooks = append(out.Hooks, h)
	}
	return &out
}

// Engine returns the stabilization timings.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		Stable:              duration(c.StableMs),
		Debounce:            duration(c.DebounceMs),
		Reset:               duration(c.ResetMs),
		ScoreGrace:          duration(c.ScoreGraceMs),
		EmptyGestureTimeout: duration(c.EmptyGestureTimeoutMs),
		Smoothing:           c.ScoreSmoothing,
	}
}

// Gesture returns the normalizer options.
func (c *Config) Gesture() gesture.Options {
	byCategory := make(map[string]float64, len(c.MinScoreByCategory))
	for k, v := range c.MinScoreByCategory {
		byCategory[k] = v
	}
	return gesture.Options{
		MinScore:           c.MinScore,
		MinScoreByCategory: byCategory,
		DenyList:           append([]string(nil), c.DenyList...),
	}
}

// FeatureWindow returns the feature accumulator window.
func (c *Config) FeatureWindow() time.Duration {
	return duration(c.Features.WindowMs)
}

// FrameInterval returns the minimum spacing between processed frames.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.MaxFPS)
}

func duration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func positive(v *float64, def float64) {
	if !finite(*v) || *v <= 0 {
		*v = def
	}
}

func nonNegative(v *float64, def float64) {
	if !finite(*v) || *v < 0 {
		*v = def
	}
}
