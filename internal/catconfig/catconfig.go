// Package catconfig parses the supervisor's YAML-shaped configuration
// document (top-level keys cos, tasks, cat_policy, sched, per
// spec.md §6), grounded on the teacher's config package idiom:
// sentinel errors and a Validate() pass separate from unmarshaling.
// No field is overlaid from environment variables.
package catconfig

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidConfig  = errors.New("catconfig: invalid configuration")
	ErrNoTasks        = errors.New("catconfig: no tasks configured")
	ErrUnknownModel   = errors.New("catconfig: unknown cat_policy model")
	ErrUnknownSched   = errors.New("catconfig: unknown sched kind")
	ErrInvalidQuality = errors.New("catconfig: invalid cat_policy eval_clusters")
)

// COSConfig describes the cache-partitioning surface assumptions of the
// operator. Neither value is compared with what the driver discovers at
// Init: min_cbm_bits is handed to the way distributors as their minimum
// way count, and max_cos is not read.
type COSConfig struct {
	MaxCOS     int `yaml:"max_cos"`
	MinCBMBits int `yaml:"min_cbm_bits"`
}

// TaskConfig is one supervised workload entry.
type TaskConfig struct {
	Cmd      string `yaml:"cmd"`
	Stdout   string `yaml:"stdout"`
	Stdin    string `yaml:"stdin"`
	Stderr   string `yaml:"stderr"`
	SkelDir  string `yaml:"skel_dir"`
	MaxInstr uint64 `yaml:"max_instructions"`
	Batch    bool   `yaml:"batch"`
}

// CatPolicyConfig configures the Policy component.
type CatPolicyConfig struct {
	Kind           string `yaml:"kind"` // "none", "divide_n", "clustered_optimal"
	Every          uint64 `yaml:"every"`
	Metric         string `yaml:"metric"`
	InvertMetric   bool   `yaml:"invert_metric"`
	Model          string `yaml:"model"` // linear, quadratic, exponential, expquad, log, linlog, camel
	NumClusters    int    `yaml:"num_clusters"`   // 0 means adaptive
	MaxClusters    int    `yaml:"max_clusters"`   // cap for adaptive search
	EvalClusters   string `yaml:"eval_clusters"`  // "dunn" or "silhouette"
	AlternateSides bool   `yaml:"alternate_sides"`
	DivideN        int    `yaml:"divide_n"` // number of heaviest clusters narrowed, for kind == "divide_n"
}

// SchedConfig configures the Scheduler component.
type SchedConfig struct {
	Kind string `yaml:"kind"` // "passthrough", "random", "fair"
}

// Config is the root document.
type Config struct {
	COS        COSConfig       `yaml:"cos"`
	Tasks      []TaskConfig    `yaml:"tasks"`
	CatPolicy  CatPolicyConfig `yaml:"cat_policy"`
	Sched      SchedConfig     `yaml:"sched"`
	IntervalMS int             `yaml:"interval_ms"`
	TimeMaxS   int             `yaml:"time_max_s"`
}

var validModels = map[string]bool{
	"none": true, "linear": true, "quadratic": true, "exponential": true,
	"expquad": true, "log": true, "linlog": true, "camel": true,
}

var validSchedKinds = map[string]bool{"passthrough": true, "random": true, "fair": true}

// Load reads and parses a YAML config file, then validates it.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catconfig: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("catconfig: %w: %v", ErrInvalidConfig, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.CatPolicy.Metric == "" {
		c.CatPolicy.Metric = "CYCLE_ACTIVITY.STALLS_L2_MISS"
	}
	if c.CatPolicy.Every == 0 {
		c.CatPolicy.Every = 1
	}
	if c.CatPolicy.EvalClusters == "" {
		c.CatPolicy.EvalClusters = "dunn"
	}
	if c.Sched.Kind == "" {
		c.Sched.Kind = "passthrough"
	}
	if c.IntervalMS == 0 {
		c.IntervalMS = 1000
	}
}

// Validate checks the parsed document for internal consistency. It
// does not check anything that requires live hardware state (e.g.
// whether max_cos matches what the driver reports).
func (c *Config) Validate() error {
	if len(c.Tasks) == 0 {
		return ErrNoTasks
	}
	for i, t := range c.Tasks {
		if t.Cmd == "" {
			return fmt.Errorf("%w: task %d has an empty cmd", ErrInvalidConfig, i)
		}
	}
	if c.CatPolicy.Kind != "" && c.CatPolicy.Kind != "none" {
		if c.CatPolicy.Model != "" && !validModels[c.CatPolicy.Model] {
			return fmt.Errorf("%w: %q", ErrUnknownModel, c.CatPolicy.Model)
		}
		if c.CatPolicy.EvalClusters != "dunn" && c.CatPolicy.EvalClusters != "silhouette" {
			return fmt.Errorf("%w: %q", ErrInvalidQuality, c.CatPolicy.EvalClusters)
		}
	}
	if !validSchedKinds[c.Sched.Kind] {
		return fmt.Errorf("%w: %q", ErrUnknownSched, c.Sched.Kind)
	}
	return nil
}
