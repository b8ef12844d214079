package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/advisorstack/oracle-advisor/internal/models"
)

// Rule is one scoring rule from a profile pack. Scalar rules compare a
// finding's value (or label, for contains) against a threshold. Rules with a
// Window aggregate findings per subject over a sliding window instead.
type Rule struct {
	ID         string          `yaml:"id"`
	Metric     string          `yaml:"metric"`
	Op         string          `yaml:"op"`
	Threshold  float64         `yaml:"threshold"`
	Match      string          `yaml:"match"`
	Severity   models.Severity `yaml:"severity"`
	Confidence float64         `yaml:"confidence"`
	Summary    string          `yaml:"summary"`
	Window     *Window         `yaml:"window"`
}

// Window configures an aggregate rule: fire when at least MinCount findings
// of the rule's metric land inside any Duration-wide window for one subject.
type Window struct {
	Duration time.Duration `yaml:"-"`
	MinCount int           `yaml:"min_count"`
}

// windowYAML is the on-disk shape; duration is a Go duration string.
type windowYAML struct {
	Duration string `yaml:"duration"`
	MinCount int    `yaml:"min_count"`
}

// UnmarshalYAML parses the window's duration string.
func (w *Window) UnmarshalYAML(value *yaml.Node) error {
	var raw windowYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}
	d, err := time.ParseDuration(raw.Duration)
	if err != nil {
		return fmt.Errorf("parse window duration %q: %w", raw.Duration, err)
	}
	w.Duration = d
	w.MinCount = raw.MinCount
	return nil
}

// Profile is the rule pack bound to one intent. Rule order in the file is
// the registration order used for tie-breaking.
type Profile struct {
	Intent models.Intent `yaml:"intent"`
	Rules  []Rule        `yaml:"rules"`
}

var validOps = map[string]struct{}{
	"gt": {}, "ge": {}, "lt": {}, "eq": {}, "contains": {},
}

// Validate checks the profile's structural invariants.
func (p *Profile) Validate() error {
	if !p.Intent.Valid() {
		return fmt.Errorf("profile has unknown intent %q", p.Intent)
	}
	seen := make(map[string]struct{}, len(p.Rules))
	for i, r := range p.Rules {
		if r.ID == "" {
			return fmt.Errorf("rule %d in profile %s has no id", i, p.Intent)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("duplicate rule id %q in profile %s", r.ID, p.Intent)
		}
		seen[r.ID] = struct{}{}
		if r.Metric == "" {
			return fmt.Errorf("rule %s has no metric", r.ID)
		}
		if r.Window != nil {
			if r.Window.Duration <= 0 || r.Window.MinCount <= 0 {
				return fmt.Errorf("rule %s window needs positive duration and min_count", r.ID)
			}
		} else {
			if _, ok := validOps[r.Op]; !ok {
				return fmt.Errorf("rule %s has unknown op %q", r.ID, r.Op)
			}
			if r.Op == "contains" && r.Match == "" {
				return fmt.Errorf("rule %s op contains requires match", r.ID)
			}
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			return fmt.Errorf("rule %s confidence %v outside [0,1]", r.ID, r.Confidence)
		}
	}
	return nil
}

// LoadProfile parses one profile pack from YAML.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile %s: %w", path, err)
	}
	return &p, nil
}

// LoadProfiles reads every *.yaml profile in dir, keyed by intent. Each
// intent may appear at most once.
func LoadProfiles(dir string) (map[models.Intent]*Profile, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no profile packs found in %s", dir)
	}
	profiles := make(map[models.Intent]*Profile, len(paths))
	for _, path := range paths {
		p, err := LoadProfile(path)
		if err != nil {
			return nil, err
		}
		if _, dup := profiles[p.Intent]; dup {
			return nil, fmt.Errorf("intent %s defined by more than one profile pack", p.Intent)
		}
		profiles[p.Intent] = p
	}
	return profiles, nil
}
