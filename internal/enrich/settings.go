package enrich

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/strategy"
)

// ErrInvalidSettings is wrapped by every settings validation failure.
var ErrInvalidSettings = eris.New("enrich: invalid settings")

// Settings are the engine's immutable run parameters.
type Settings struct {
	// Concurrency bounds how many records of a batch run at once.
	Concurrency int
	BatchSize   int
	// BatchDelay is paused between batches, never after the last one.
	BatchDelay time.Duration

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	MinConfidence         float64
	HighConfidence        float64
	DefaultThreshold      float64
	RichRegistryThreshold float64
	RichRegistryStates    []string

	TargetFieldCount    int
	RequiredFields      []string
	AuthoritativeSource string

	PipelineVersion string
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		Concurrency:           3,
		BatchSize:             5,
		BatchDelay:            2 * time.Second,
		Timeout:               30 * time.Second,
		MaxRetries:            3,
		RetryDelay:            time.Second,
		MinConfidence:         0.5,
		HighConfidence:        0.8,
		DefaultThreshold:      0.7,
		RichRegistryThreshold: 0.8,
		RichRegistryStates:    []string{"TX"},
		TargetFieldCount:      len(model.TargetFields),
		RequiredFields:        []string{model.FieldOwner, model.FieldAddress},
		AuthoritativeSource:   strategy.BusinessRegistry,
		PipelineVersion:       "1.0.0",
	}
}

// SettingsFromConfig maps the loaded configuration onto engine settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	p, dq := cfg.Processing, cfg.DataQuality
	return Settings{
		Concurrency:           p.MaxConcurrentRequests,
		BatchSize:             p.BatchSize,
		BatchDelay:            seconds(p.RateLimitDelaySeconds),
		Timeout:               seconds(p.TimeoutSeconds),
		MaxRetries:            p.MaxRetries,
		RetryDelay:            seconds(p.RetryDelaySeconds),
		MinConfidence:         dq.MinimumConfidenceThreshold,
		HighConfidence:        dq.HighConfidenceThreshold,
		DefaultThreshold:      dq.DefaultThreshold,
		RichRegistryThreshold: dq.RichRegistryThreshold,
		RichRegistryStates:    dq.RichRegistryStates,
		TargetFieldCount:      dq.TargetFieldCount,
		RequiredFields:        dq.RequiredFields,
		AuthoritativeSource:   dq.AuthoritativeSource,
		PipelineVersion:       cfg.Pipeline.Version,
	}
}

// Validate reports every problem at once. The run must not start when it
// returns an error.
func (s Settings) Validate() error {
	var issues []string
	add := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	if s.Concurrency <= 0 {
		add("concurrency must be > 0")
	}
	if s.BatchSize <= 0 {
		add("batch size must be > 0")
	}
	if s.MaxRetries < 1 {
		add("max retries must be >= 1")
	}
	if s.TargetFieldCount <= 0 {
		add("target field count must be > 0")
	}
	for name, d := range map[string]time.Duration{
		"batch delay": s.BatchDelay,
		"timeout":     s.Timeout,
		"retry delay": s.RetryDelay,
	} {
		if d < 0 {
			add("%s must be >= 0", name)
		}
	}
	for name, v := range map[string]float64{
		"min confidence":          s.MinConfidence,
		"high confidence":         s.HighConfidence,
		"default threshold":       s.DefaultThreshold,
		"rich registry threshold": s.RichRegistryThreshold,
	} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			add("%s must be between 0 and 1", name)
		}
	}
	if s.MinConfidence > s.HighConfidence {
		add("min confidence must be <= high confidence")
	}

	if len(issues) == 0 {
		return nil
	}
	slices.Sort(issues)
	return eris.Wrap(ErrInvalidSettings, strings.Join(issues, "; "))
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
