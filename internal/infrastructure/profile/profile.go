// Package profile loads site profiles from YAML. A profile carries the
// site-specific pieces (selectors, capture patterns, event classification)
// so the rest of the system stays site-agnostic.
package profile

import (
	"fmt"
	"os"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"media-agent/internal/domain/entity"
)

// Load reads and validates one site profile.
func Load(path string) (entity.SiteProfile, error) {
	var p entity.SiteProfile
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if err := Validate(p); err != nil {
		return p, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// Validate rejects profiles the worker cannot act on.
func Validate(p entity.SiteProfile) error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.URL == "" {
		return fmt.Errorf("url is required")
	}
	if p.Selectors.Prompt == "" {
		return fmt.Errorf("selectors.prompt is required")
	}
	if len(p.Capture.Patterns) == 0 {
		return fmt.Errorf("capture.patterns must list at least one pattern")
	}
	for _, pat := range p.Capture.Patterns {
		if _, err := glob.Compile(pat); err != nil {
			return fmt.Errorf("capture pattern %q: %w", pat, err)
		}
	}
	if len(p.Events.Terminal) == 0 && len(p.Events.Error) == 0 {
		return fmt.Errorf("events must classify at least one terminal or error type")
	}
	return nil
}

// CompilePatterns compiles the profile's capture patterns. Validate has
// already proven they compile.
func CompilePatterns(p entity.SiteProfile) []glob.Glob {
	out := make([]glob.Glob, 0, len(p.Capture.Patterns))
	for _, pat := range p.Capture.Patterns {
		out = append(out, glob.MustCompile(pat))
	}
	return out
}
