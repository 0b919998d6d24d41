package timebased

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

// ErrInvalidConfig marks unusable fragmentation properties.
var ErrInvalidConfig = errors.New("invalid time-based fragmentation config")

// Property keys of a time-based fragmentation.
const (
	PropSubjectFilter     = "fragmenterSubjectFilter"
	PropFragmentationPath = "fragmentationPath"
	PropMaxGranularity    = "maxGranularity"
	PropLinearTimeCaching = "linearTimeCachingEnabled"
	DefaultSubjectFilter  = ".*"
	DefaultBucketValue    = "unknown"
	StrategyName          = "timebased"
)

// Config is the parsed property set of one time-based fragmentation.
type Config struct {
	SubjectFilter            *regexp.Regexp
	FragmentationPath        string
	MaxGranularity           Granularity
	LinearTimeCachingEnabled bool
}

// ParseConfig validates props. The subject filter must match a subject in
// full.
func ParseConfig(props map[string]string) (Config, error) {
	var cfg Config

	expr, ok := props[PropSubjectFilter]
	if !ok || expr == "" {
		expr = DefaultSubjectFilter
	}
	re, err := regexp.Compile("^(?:" + expr + ")$")
	if err != nil {
		return Config{}, errors.Wrapf(ErrInvalidConfig, "%s %q: %v", PropSubjectFilter, expr, err)
	}
	cfg.SubjectFilter = re

	cfg.FragmentationPath = props[PropFragmentationPath]
	if cfg.FragmentationPath == "" {
		return Config{}, errors.Wrapf(ErrInvalidConfig, "%s is required", PropFragmentationPath)
	}

	raw, ok := props[PropMaxGranularity]
	if !ok {
		return Config{}, errors.Wrapf(ErrInvalidConfig, "%s is required", PropMaxGranularity)
	}
	if cfg.MaxGranularity, err = ParseGranularity(raw); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, PropMaxGranularity, err)
	}

	if raw, ok := props[PropLinearTimeCaching]; ok && raw != "" {
		if cfg.LinearTimeCachingEnabled, err = strconv.ParseBool(raw); err != nil {
			return Config{}, errors.Wrapf(ErrInvalidConfig, "%s %q", PropLinearTimeCaching, raw)
		}
	}
	return cfg, nil
}

// Matches reports whether subject passes the subject filter.
func (c Config) Matches(subject string) bool {
	if c.SubjectFilter == nil {
		return true
	}
	return c.SubjectFilter.MatchString(subject)
}
