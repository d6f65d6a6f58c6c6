package entity

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes YAML scalars like "300s" (time.ParseDuration syntax) or a
// bare integer number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var secs int64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// SiteProfile describes one target surface as data: selectors, the network
// capture patterns, and how its stream events are classified. Site behavior
// is a value injected into a worker, not a worker subtype.
type SiteProfile struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`

	Selectors struct {
		Prompt string `yaml:"prompt"`
		Send   string `yaml:"send"` // empty means submit with Enter
		Upload string `yaml:"upload"`
		Ready  string `yaml:"ready"` // affordance that must exist after Start
	} `yaml:"selectors"`

	// AspectRatios maps a requested ratio (e.g. "16:9") to the selector that
	// picks it. Ratios absent from the map are rejected before submission.
	AspectRatios map[string]string `yaml:"aspect_ratios"`

	// CleanupClicks are clicked best-effort after a successful task, e.g. to
	// delete the conversation so the next task starts clean.
	CleanupClicks []string `yaml:"cleanup_clicks"`

	Capture struct {
		// Patterns are glob patterns matched against response URLs (e.g.
		// "*GenerateContent*"). Only matching responses become events.
		Patterns []string `yaml:"patterns"`
	} `yaml:"capture"`

	Events struct {
		Error    []string `yaml:"error"`    // event types that fail the task
		Terminal []string `yaml:"terminal"` // event types that complete it
		Content  []string `yaml:"content"`  // event types fed to the extractor
	} `yaml:"events"`

	Extract struct {
		TagMarkers    []string `yaml:"tag_markers"`    // e.g. "model"
		TokenPrefixes []string `yaml:"token_prefixes"` // e.g. "v1:"
		MaxTextLen    int      `yaml:"max_text_len"`   // 0 means default 1000
		MaxDepth      int      `yaml:"max_depth"`      // 0 means default 15
	} `yaml:"extract"`

	// LoginMarkers are phrases whose presence in the page text means the
	// surface is behind a login wall and not ready.
	LoginMarkers []string `yaml:"login_markers"`

	Deadlines struct {
		Image Duration `yaml:"image"` // 0 means default 300s
		Video Duration `yaml:"video"` // 0 means default 600s
	} `yaml:"deadlines"`
}

// Deadline returns the submission deadline for a task class.
func (p SiteProfile) Deadline(class TaskClass) time.Duration {
	switch class {
	case TaskClassVideo:
		if p.Deadlines.Video > 0 {
			return time.Duration(p.Deadlines.Video)
		}
		return 600 * time.Second
	default:
		if p.Deadlines.Image > 0 {
			return time.Duration(p.Deadlines.Image)
		}
		return 300 * time.Second
	}
}
