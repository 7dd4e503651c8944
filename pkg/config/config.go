// Package config loads the engine configuration. Defaults live in an
// embedded CUE schema; a user-supplied CUE file is unified against it, so
// invalid settings fail with structured errors instead of silently
// falling back.
package config

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	embedded "github.com/fathoms-io/sounder/cue"
)

// RiskConfig holds the classification thresholds. The defaults are
// inherited heuristics, not fixed law; tune them per cluster.
type RiskConfig struct {
	HighFanInThreshold   int `json:"highFanInThreshold"`
	MediumFanInThreshold int `json:"mediumFanInThreshold"`
	CrossNamespaceCount  int `json:"crossNamespaceCount"`
}

// RecoveryConfig holds the constants behind the recovery-time estimate.
type RecoveryConfig struct {
	DefaultBaseSeconds  int            `json:"defaultBaseSeconds"`
	PerDependentSeconds int            `json:"perDependentSeconds"`
	CapSeconds          int            `json:"capSeconds"`
	BaseSeconds         map[string]int `json:"baseSeconds"`
}

// BaseFor returns the base recovery cost for a kind.
func (c RecoveryConfig) BaseFor(kind string) int {
	if s, ok := c.BaseSeconds[kind]; ok {
		return s
	}
	return c.DefaultBaseSeconds
}

// PlanConfig holds planning policy choices.
type PlanConfig struct {
	// CyclePolicy controls planning when a cycle exists outside the
	// requested change set: "warn" or "block".
	CyclePolicy string `json:"cyclePolicy"`
}

// OrderConfig holds apply-order tuning.
type OrderConfig struct {
	// KindTiers maps a kind to a tier name, overriding the built-in
	// table for ordering tie-breaks.
	KindTiers map[string]string `json:"kindTiers"`
}

// Config is the full engine configuration.
type Config struct {
	Risk     RiskConfig     `json:"risk"`
	Recovery RecoveryConfig `json:"recovery"`
	Plan     PlanConfig     `json:"plan"`
	Order    OrderConfig    `json:"order"`
}

// Default returns the configuration with every schema default applied.
func Default() (*Config, error) {
	return Load("")
}

// Load evaluates the embedded schema, unifies the optional user file
// against it, and decodes the result.
func Load(path string) (*Config, error) {
	schemaBytes, err := embedded.ConfigFS.ReadFile(embedded.SchemaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded config schema: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaBytes)
	if schema.Err() != nil {
		return nil, fmt.Errorf("failed to compile config schema: %w", schema.Err())
	}

	val := schema.LookupPath(cue.ParsePath("#Config"))
	if val.Err() != nil {
		return nil, fmt.Errorf("config schema has no #Config definition: %w", val.Err())
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		user := ctx.CompileBytes(data)
		if user.Err() != nil {
			return nil, fmt.Errorf("failed to compile config file %s: %w", path, user.Err())
		}
		val = val.Unify(user)
		if err := val.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
		}
	}

	var cfg Config
	if err := val.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return &cfg, nil
}
