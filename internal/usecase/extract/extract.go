// Package extract walks the semi-structured response trees captured from a
// site's network traffic and pulls out tagged payloads and human-readable
// text. Sites nest their responses inconsistently, so every traversal is
// depth-bounded: anything past the bound is treated as not found rather than
// an error.
package extract

import (
	"bytes"
	"encoding/base64"
	"strings"
)

// DefaultMaxTextLen is the ceiling above which a string is assumed to be an
// opaque blob rather than prose.
const DefaultMaxTextLen = 1000

// DefaultMaxDepth bounds recursion over adversarially nested trees.
const DefaultMaxDepth = 15

// minMediaLen rejects strings too short to be an encoded asset.
const minMediaLen = 100

// TagPredicate reports whether a leaf value is a recognized tag marker.
type TagPredicate func(v any) bool

// TagEquals matches any of the given marker strings exactly.
func TagEquals(markers ...string) TagPredicate {
	return func(v any) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		for _, m := range markers {
			if s == m {
				return true
			}
		}
		return false
	}
}

// FindTagged walks tree depth-first, pre-order, and collects the payload of
// every two-element sequence whose second element satisfies pred. Nothing
// deeper than maxDepth is visited. The input is never mutated.
func FindTagged(tree any, pred TagPredicate, maxDepth int) []any {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	var out []any
	findTagged(tree, pred, maxDepth, 0, &out)
	return out
}

func findTagged(node any, pred TagPredicate, maxDepth, depth int, out *[]any) {
	if depth > maxDepth {
		return
	}
	switch v := node.(type) {
	case []any:
		if len(v) == 2 && pred(v[1]) {
			*out = append(*out, v[0])
			return
		}
		for _, item := range v {
			findTagged(item, pred, maxDepth, depth+1, out)
		}
	case map[string]any:
		for _, item := range v {
			findTagged(item, pred, maxDepth, depth+1, out)
		}
	}
}

// TextFilter excludes strings that are not human-readable prose: opaque
// tokens with known prefixes, implausibly long blobs, and the markers
// themselves. This keeps binary and token noise out of the text channel.
type TextFilter struct {
	TokenPrefixes []string
	Markers       []string
	MaxLen        int // 0 means DefaultMaxTextLen
}

// Keep reports whether s passes the filter.
func (f TextFilter) Keep(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	max := f.MaxLen
	if max <= 0 {
		max = DefaultMaxTextLen
	}
	if len(s) >= max {
		return false
	}
	for _, p := range f.TokenPrefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return false
		}
	}
	for _, m := range f.Markers {
		if s == m {
			return false
		}
	}
	return true
}

// FindText collects, in pre-order arrival order, every string leaf of tree
// that passes the filter, down to maxDepth.
func FindText(tree any, filter TextFilter, maxDepth int) []string {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	var out []string
	findText(tree, filter, maxDepth, 0, &out)
	return out
}

func findText(node any, filter TextFilter, maxDepth, depth int, out *[]string) {
	if depth > maxDepth {
		return
	}
	switch v := node.(type) {
	case string:
		// Keep trims only to judge the string; chunk boundaries carry
		// meaningful whitespace, so the original value is collected.
		if filter.Keep(v) {
			*out = append(*out, v)
		}
	case []any:
		for _, item := range v {
			findText(item, filter, maxDepth, depth+1, out)
		}
	case map[string]any:
		for _, item := range v {
			findText(item, filter, maxDepth, depth+1, out)
		}
	}
}

// signature is a magic-number prefix at a byte offset.
type signature struct {
	offset int
	magic  []byte
	mime   string
}

var signatures = []signature{
	{0, []byte("\x89PNG\r\n\x1a\n"), "image/png"},
	{0, []byte{0xFF, 0xD8, 0xFF}, "image/jpeg"},
	{0, []byte("GIF87a"), "image/gif"},
	{0, []byte("GIF89a"), "image/gif"},
	{0, []byte("RIFF"), "image/webp"}, // RIFF....WEBP checked below
	{4, []byte("ftyp"), "video/mp4"},
	{0, []byte{0x1A, 0x45, 0xDF, 0xA3}, "video/webm"},
}

// DetectMIME returns the media type indicated by the buffer's leading bytes,
// or "" when no known file signature matches.
func DetectMIME(buf []byte) string {
	for _, sig := range signatures {
		end := sig.offset + len(sig.magic)
		if len(buf) < end || !bytes.Equal(buf[sig.offset:end], sig.magic) {
			continue
		}
		if sig.mime == "image/webp" {
			if len(buf) < 12 || !bytes.Equal(buf[8:12], []byte("WEBP")) {
				continue
			}
		}
		return sig.mime
	}
	return ""
}

// DecodeMedia validates a candidate payload as media: it must be a base64
// string that decodes cleanly AND carries a known file signature. Arbitrary
// long strings never classify as media.
func DecodeMedia(payload any) ([]byte, string, bool) {
	s, ok := payload.(string)
	if !ok || len(s) < minMediaLen {
		return nil, "", false
	}
	if i := strings.IndexByte(s, ','); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+1:]
	}
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, "", false
	}
	mime := DetectMIME(buf)
	if mime == "" {
		return nil, "", false
	}
	return buf, mime, true
}
