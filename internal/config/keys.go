package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nvandessel/tier-alloc/internal/models"
	"github.com/shopspring/decimal"
)

// Keys lists the dot-notation keys accepted by Get and Set.
var Keys = []string{
	"logging.level",
	"logging.format",
	"engine.basic_iterations",
	"engine.smooth_iterations",
	"engine.error_threshold",
	"split.cohort_a",
	"split.cohort_b",
	"split.legacy_default_ratio.enabled",
	"split.legacy_default_ratio.ratio_a",
	"split.legacy_default_ratio.ratio_b",
	"store.path",
	"server.addr",
	"server.release_mode",
	"server.read_timeout",
	"server.write_timeout",
	"server.allocations_per_minute",
	"backup.dir",
	"backup.retention.max_count",
	"backup.retention.max_age",
}

// Get retrieves a configuration value by dot-notation key.
func (c *Config) Get(key string) (any, bool) {
	switch key {
	case "logging.level":
		return c.Logging.Level, true
	case "logging.format":
		return c.Logging.Format, true
	case "engine.basic_iterations":
		return c.Engine.BasicIterations, true
	case "engine.smooth_iterations":
		return c.Engine.SmoothIterations, true
	case "engine.error_threshold":
		return c.Engine.ErrorThreshold, true
	case "split.cohort_a":
		return c.Split.CohortA, true
	case "split.cohort_b":
		return c.Split.CohortB, true
	case "split.legacy_default_ratio.enabled":
		return c.Split.LegacyDefaultRatio.Enabled, true
	case "split.legacy_default_ratio.ratio_a":
		return c.Split.LegacyDefaultRatio.RatioA, true
	case "split.legacy_default_ratio.ratio_b":
		return c.Split.LegacyDefaultRatio.RatioB, true
	case "store.path":
		return c.Store.Path, true
	case "server.addr":
		return c.Server.Addr, true
	case "server.release_mode":
		return c.Server.ReleaseMode, true
	case "server.read_timeout":
		return c.Server.ReadTimeout.String(), true
	case "server.write_timeout":
		return c.Server.WriteTimeout.String(), true
	case "server.allocations_per_minute":
		return c.Server.AllocationsPerMinute, true
	case "backup.dir":
		return c.Backup.Dir, true
	case "backup.retention.max_count":
		return c.Backup.Retention.MaxCount, true
	case "backup.retention.max_age":
		return c.Backup.Retention.MaxAge, true
	default:
		return nil, false
	}
}

// Set sets a configuration value by dot-notation key. The result is not
// validated as a whole; call Validate before saving.
func (c *Config) Set(key, value string) error {
	switch key {
	case "logging.level":
		c.Logging.Level = value
	case "logging.format":
		c.Logging.Format = value
	case "engine.basic_iterations":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid iteration count: %s", value)
		}
		c.Engine.BasicIterations = n
	case "engine.smooth_iterations":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid iteration count: %s", value)
		}
		c.Engine.SmoothIterations = n
	case "engine.error_threshold":
		if _, err := decimal.NewFromString(value); err != nil {
			return fmt.Errorf("invalid threshold: %s", value)
		}
		c.Engine.ErrorThreshold = value
	case "split.cohort_a":
		c.Split.CohortA = value
	case "split.cohort_b":
		c.Split.CohortB = value
	case "split.legacy_default_ratio.enabled":
		c.Split.LegacyDefaultRatio.Enabled = value == "true" || value == "1"
	case "split.legacy_default_ratio.ratio_a":
		c.Split.LegacyDefaultRatio.RatioA = value
	case "split.legacy_default_ratio.ratio_b":
		c.Split.LegacyDefaultRatio.RatioB = value
	case "store.path":
		c.Store.Path = value
	case "server.addr":
		c.Server.Addr = value
	case "server.release_mode":
		c.Server.ReleaseMode = value == "true" || value == "1"
	case "server.allocations_per_minute":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid rate: %s", value)
		}
		c.Server.AllocationsPerMinute = n
	case "backup.dir":
		c.Backup.Dir = value
	case "backup.retention.max_count":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid count: %s", value)
		}
		c.Backup.Retention.MaxCount = n
	case "backup.retention.max_age":
		c.Backup.Retention.MaxAge = value
	case "server.read_timeout", "server.write_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		if key == "server.read_timeout" {
			c.Server.ReadTimeout = d
		} else {
			c.Server.WriteTimeout = d
		}
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

// StrategyVariant returns the configured variant override for a delivery type.
func (c *Config) StrategyVariant(deliveryType string) (models.Variant, bool) {
	o, ok := c.Strategies[deliveryType]
	if !ok || o.Variant == "" {
		return models.VariantBasic, false
	}
	v, err := models.ParseVariant(o.Variant)
	if err != nil {
		return models.VariantBasic, false
	}
	return v, true
}
