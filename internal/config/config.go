// Package config holds service configuration and its loading logic.
package config

import (
	"errors"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config contains process configuration.
type Config struct {
	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DatabaseDSN is the postgres connection string for the student
	// registry and attendance records.
	DatabaseDSN string `koanf:"database_dsn"`

	// RedisAddr is the redis host:port used for gallery snapshot caching.
	RedisAddr string `koanf:"redis_addr"`

	// ModelServerURL is the base URL of the face detection/embedding server.
	ModelServerURL string `koanf:"model_server_url"`

	// JWTSecret signs operator bearer tokens. JWTAudience is optional.
	JWTSecret   string `koanf:"jwt_secret"`
	JWTAudience string `koanf:"jwt_audience"`

	// MatchThreshold is the minimum confidence required for a frame to
	// count toward confirmation.
	MatchThreshold float64 `koanf:"match_threshold"`

	// RejectionDistance is the cosine distance above which a face is
	// reported as Unknown.
	RejectionDistance float64 `koanf:"rejection_distance"`

	// FramesRequired is the number of consecutive qualifying frames
	// needed to confirm a track.
	FramesRequired int `koanf:"frames_required"`

	// EmbeddingDim is the expected face embedding dimensionality.
	EmbeddingDim int `koanf:"embedding_dim"`

	// CropMargin is the proportional margin added around a detected face
	// before liveness analysis.
	CropMargin float64 `koanf:"crop_margin"`

	// LivenessPassThreshold is the minimum liveness score for a frame to
	// count as live. LivenessMaxFails is the consecutive-failure budget
	// before a track is rejected.
	LivenessPassThreshold float64 `koanf:"liveness_pass_threshold"`
	LivenessMaxFails      int     `koanf:"liveness_max_fails"`

	// RejectedCooldownFrames is how long a rejected track stays frozen
	// before it may reset to detected.
	RejectedCooldownFrames int `koanf:"rejected_cooldown_frames"`

	// EvictAfterFrames evicts tracks unseen for this many frames.
	EvictAfterFrames int `koanf:"evict_after_frames"`

	// ConfidenceRingSize bounds the per-track confidence history.
	ConfidenceRingSize int `koanf:"confidence_ring_size"`

	// AssociationRadius is the minimum centroid distance (pixels) within
	// which a detection attaches to an existing track.
	AssociationRadius float64 `koanf:"association_radius"`

	// GalleryCacheTTLSeconds bounds how long a cached gallery snapshot
	// may be reused by new sessions.
	GalleryCacheTTLSeconds int `koanf:"gallery_cache_ttl_seconds"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Addr:                   ":8080",
		DatabaseDSN:            "host=postgres user=postgres password=postgres dbname=attendance port=5432 sslmode=disable",
		RedisAddr:              "redis:6379",
		ModelServerURL:         "http://model-server:8000",
		JWTSecret:              "dev-secret",
		MatchThreshold:         0.6,
		RejectionDistance:      0.45,
		FramesRequired:         3,
		EmbeddingDim:           512,
		CropMargin:             0.35,
		LivenessPassThreshold:  0.5,
		LivenessMaxFails:       3,
		RejectedCooldownFrames: 30,
		EvictAfterFrames:       15,
		ConfidenceRingSize:     16,
		AssociationRadius:      60,
		GalleryCacheTTLSeconds: 60,
	}
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if ATTEND_CONFIG is set
//  3. env (prefix ATTEND_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("ATTEND_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// Environment variables: ATTEND_ADDR, ATTEND_MATCH_THRESHOLD, ...
	// Underscores are preserved to match the koanf tags on the struct.
	envProvider := env.Provider("ATTEND_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "attend_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if c.FramesRequired < 1 {
		return errors.New("frames_required must be at least 1")
	}
	if c.RejectionDistance <= 0 {
		return errors.New("rejection_distance must be positive")
	}
	if c.MatchThreshold < 0 || c.MatchThreshold > 1 {
		return errors.New("match_threshold must be in [0,1]")
	}
	if c.LivenessMaxFails < 1 {
		return errors.New("liveness_max_fails must be at least 1")
	}
	if c.ConfidenceRingSize < 1 {
		return errors.New("confidence_ring_size must be at least 1")
	}
	return nil
}
