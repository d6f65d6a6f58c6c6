// Package reassemble folds an ordered sequence of captured network events
// into one finalized stream result. A single error-class event invalidates
// the whole task; a terminal event completes it; a stream that just ends is a
// soft failure carrying whatever was collected.
package reassemble

import (
	"crypto/sha256"

	"media-agent/internal/domain/entity"
	"media-agent/internal/usecase/extract"
)

// Class is the reassembly role of one event.
type Class int

const (
	ClassIgnore Class = iota
	ClassContent
	ClassTerminal
	ClassError
)

// Config classifies event types and parameterizes extraction. It is derived
// from a site profile once per worker and is immutable afterwards.
type Config struct {
	ErrorTypes    []string
	TerminalTypes []string
	ContentTypes  []string

	TagMarkers    []string
	TokenPrefixes []string
	MaxTextLen    int
	MaxDepth      int
}

// FromProfile builds the reassembly config for one site.
func FromProfile(p entity.SiteProfile) Config {
	return Config{
		ErrorTypes:    p.Events.Error,
		TerminalTypes: p.Events.Terminal,
		ContentTypes:  p.Events.Content,
		TagMarkers:    p.Extract.TagMarkers,
		TokenPrefixes: p.Extract.TokenPrefixes,
		MaxTextLen:    p.Extract.MaxTextLen,
		MaxDepth:      p.Extract.MaxDepth,
	}
}

// Classify maps an event type to its reassembly role. Error wins over
// terminal wins over content when a profile lists a type more than once.
func (c Config) Classify(ev entity.ResponseEvent) Class {
	if contains(c.ErrorTypes, ev.Type) {
		return ClassError
	}
	if contains(c.TerminalTypes, ev.Type) {
		return ClassTerminal
	}
	if contains(c.ContentTypes, ev.Type) {
		return ClassContent
	}
	return ClassIgnore
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// IncompleteReason marks a stream that ended without an explicit completion.
const IncompleteReason = "stream ended without explicit completion"

// Result is the reassembled outcome of one event stream.
type Result struct {
	Text         string
	Media        []entity.Media
	TerminalSeen bool
	ErrorSeen    bool
	Reason       string
}

// Consume folds events in arrival order. It is a pure function of its input:
// consuming the same materialized list twice yields identical Results, and
// events after an error or terminal event are never touched.
func Consume(cfg Config, events []entity.ResponseEvent) Result {
	var res Result
	filter := extract.TextFilter{
		TokenPrefixes: cfg.TokenPrefixes,
		Markers:       cfg.TagMarkers,
		MaxLen:        cfg.MaxTextLen,
	}
	tagged := extract.TagEquals(cfg.TagMarkers...)
	seen := make(map[string]bool)

	for _, ev := range events {
		switch cfg.Classify(ev) {
		case ClassError:
			res.ErrorSeen = true
			res.Reason = errorReason(ev)
			return res
		case ClassTerminal:
			res.TerminalSeen = true
			return res
		case ClassContent:
			for _, payload := range extract.FindTagged(ev.Payload, tagged, cfg.MaxDepth) {
				for _, text := range extract.FindText(payload, filter, cfg.MaxDepth) {
					res.Text += text
				}
				collectMedia(payload, cfg.MaxDepth, seen, &res.Media)
			}
			// Media markers can tag pairs outside any text-tagged subtree.
			collectMedia(ev.Payload, cfg.MaxDepth, seen, &res.Media)
		}
	}

	res.Reason = IncompleteReason
	return res
}

// errorReason pulls a human-readable message out of an error event payload.
func errorReason(ev entity.ResponseEvent) string {
	if m, ok := ev.Payload.(map[string]any); ok {
		for _, k := range []string{"message", "error", "detail"} {
			if s, ok := m[k].(string); ok && s != "" {
				return s
			}
		}
	}
	if s, ok := ev.Payload.(string); ok && s != "" {
		return s
	}
	return "upstream error event: " + ev.Type
}

// collectMedia appends every validated media payload found in tree,
// preserving first-seen order and de-duplicating by exact value.
func collectMedia(tree any, maxDepth int, seen map[string]bool, out *[]entity.Media) {
	isMIME := func(v any) bool {
		s, ok := v.(string)
		return ok && knownMediaMarker(s)
	}
	// Sites emit media as [payload, marker] pairs next to the text channel.
	for _, payload := range extract.FindTagged(tree, isMIME, maxDepth) {
		buf, mime, ok := extract.DecodeMedia(payload)
		if !ok {
			continue
		}
		sum := sha256.Sum256(buf)
		key := mime + ":" + string(sum[:])
		if seen[key] {
			continue
		}
		seen[key] = true
		*out = append(*out, entity.Media{MIME: mime, Data: buf})
	}
}

func knownMediaMarker(s string) bool {
	switch s {
	case "image/png", "image/jpeg", "image/gif", "image/webp",
		"video/mp4", "video/webm":
		return true
	}
	return false
}
