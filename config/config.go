// Package config provides environment-variable configuration loading
// (EnvConfig, Validator — the common EVE loading pattern) adapted to the
// digest engine's own runtime toggles and YAML source document, rather than
// the generic server/database/auth settings the pattern originally loaded.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvConfig provides utilities for loading configuration from environment
// variables with an optional common prefix.
type EnvConfig struct {
	prefix string
}

// NewEnvConfig creates a new environment configuration loader.
func NewEnvConfig(prefix string) *EnvConfig {
	return &EnvConfig{prefix: prefix}
}

// GetString retrieves a string value from environment with optional default.
func (ec *EnvConfig) GetString(key, defaultValue string) string {
	if value := os.Getenv(ec.buildKey(key)); value != "" {
		return value
	}
	return defaultValue
}

// GetInt retrieves an integer value from environment with optional default.
func (ec *EnvConfig) GetInt(key string, defaultValue int) int {
	if value := os.Getenv(ec.buildKey(key)); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetBool retrieves a boolean value from environment with optional default.
func (ec *EnvConfig) GetBool(key string, defaultValue bool) bool {
	if value := os.Getenv(ec.buildKey(key)); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func (ec *EnvConfig) buildKey(key string) string {
	if ec.prefix != "" {
		return ec.prefix + "_" + key
	}
	return key
}

// Validator accumulates configuration validation errors.
type Validator struct {
	errors []string
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{errors: make([]string, 0)}
}

// RequireOneOf validates that a value is one of the allowed options.
func (v *Validator) RequireOneOf(field, value string, allowed []string) {
	for _, option := range allowed {
		if value == option {
			return
		}
	}
	v.errors = append(v.errors, fmt.Sprintf("%s must be one of: %s (got %q)", field, strings.Join(allowed, ", "), value))
}

// RequirePositiveInt validates that an integer field is positive.
func (v *Validator) RequirePositiveInt(field string, value int) {
	if value <= 0 {
		v.errors = append(v.errors, fmt.Sprintf("%s must be positive", field))
	}
}

// IsValid returns true if there are no validation errors.
func (v *Validator) IsValid() bool { return len(v.errors) == 0 }

// Validate returns an error summarizing every accumulated validation failure.
func (v *Validator) Validate() error {
	if v.IsValid() {
		return nil
	}
	return fmt.Errorf("configuration validation failed: %s", strings.Join(v.errors, "; "))
}

// Importance is the minimum notability tier the digest filter boundary
// admits an item at.
type Importance string

const (
	ImportanceCritical Importance = "critical"
	ImportanceHigh     Importance = "high"
	ImportanceMedium   Importance = "medium"
	ImportanceLow      Importance = "low"
)

var importanceRank = map[Importance]int{
	ImportanceLow:      0,
	ImportanceMedium:   1,
	ImportanceHigh:     2,
	ImportanceCritical: 3,
}

// Meets reports whether candidate is at least as important as threshold.
func (threshold Importance) Meets(candidate Importance) bool {
	return importanceRank[candidate] >= importanceRank[threshold]
}

// RuntimeOptions is the set of per-run toggles the entry point accepts,
// matching the inbound interface's runtime-toggle map one field at a time.
type RuntimeOptions struct {
	LookbackDays        int
	MinImportance       Importance
	DeepPRCrawl         bool
	CollectParallel     bool
	MaxCollectThreads   int
	MaxRepoThreads      int
	DryRun              bool
	PlatformToken       string
	SummarizationAPIKey string
}

// LoadRuntimeOptions reads runtime toggles from the environment, applying
// the token-aware defaults (4/3 with a token, 2/2 without) when the thread
// caps are left unset.
func LoadRuntimeOptions(prefix string) RuntimeOptions {
	env := NewEnvConfig(prefix)
	token := env.GetString("PLATFORM_TOKEN", "")

	defaultCollectThreads, defaultRepoThreads := 2, 2
	if token != "" {
		defaultCollectThreads, defaultRepoThreads = 4, 3
	}

	return RuntimeOptions{
		LookbackDays:        env.GetInt("LOOKBACK_DAYS", 7),
		MinImportance:       Importance(env.GetString("DIGEST_MIN_IMPORTANCE", string(ImportanceMedium))),
		DeepPRCrawl:         env.GetBool("DEEP_PR_CRAWL", true),
		CollectParallel:     env.GetBool("COLLECT_PARALLEL", true),
		MaxCollectThreads:   env.GetInt("MAX_COLLECT_THREADS", defaultCollectThreads),
		MaxRepoThreads:      env.GetInt("MAX_REPO_THREADS", defaultRepoThreads),
		DryRun:              env.GetBool("DRY_RUN", false),
		PlatformToken:       token,
		SummarizationAPIKey: env.GetString("SUMMARIZATION_API_KEY", ""),
	}
}

// Validate checks RuntimeOptions for internally inconsistent values.
func (o RuntimeOptions) Validate() error {
	v := NewValidator()
	v.RequirePositiveInt("LookbackDays", o.LookbackDays)
	v.RequireOneOf("MinImportance", string(o.MinImportance), []string{
		string(ImportanceCritical), string(ImportanceHigh), string(ImportanceMedium), string(ImportanceLow),
	})
	v.RequirePositiveInt("MaxCollectThreads", o.MaxCollectThreads)
	v.RequirePositiveInt("MaxRepoThreads", o.MaxRepoThreads)
	return v.Validate()
}

// digestTimezone is the fixed UTC+8 timezone LOOKBACK_DAYS is interpreted
// against, independent of the host machine's local timezone.
var digestTimezone = time.FixedZone("UTC+8", 8*60*60)

// Cutoff computes today's UTC+8 midnight boundary minus LookbackDays,
// expressed in UTC for direct comparison against parsed API timestamps.
func (o RuntimeOptions) Cutoff(now time.Time) time.Time {
	local := now.In(digestTimezone)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, digestTimezone)
	return midnight.AddDate(0, 0, -o.LookbackDays).UTC()
}
