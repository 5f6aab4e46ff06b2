// Package intent maps a user query to the set of specialists to consult.
// The model-based classification path lives in the activities layer; this
// package holds the deterministic pieces: keyword fallback, validation of
// model output against the known source set, and the absolute-fallback pair.
package intent

import (
	"strings"

	"github.com/verity-labs/research-orchestrator/internal/citations"
)

// Keyword indicators per source, scanned in fixed order for determinism.
var keywordTable = []struct {
	source   string
	keywords []string
}{
	{citations.SourceAcademic, []string{"paper", "papers", "arxiv", "research", "study", "publication"}},
	{citations.SourceVideo, []string{"video", "videos", "youtube", "tutorial", "watch", "lecture"}},
	{citations.SourceRepository, []string{"repo", "repository", "code", "github", "implementation", "library"}},
	{citations.SourceWeb, []string{"article", "blog", "news", "website"}},
}

// DefaultPair is the absolute fallback when classification cannot run at all.
// Fan-out requires at least one task, so this is never empty.
func DefaultPair() []string {
	return []string{citations.SourceLocal, citations.SourceWeb}
}

// AllSources returns the full specialist set.
func AllSources() []string {
	out := make([]string, len(citations.KnownSources))
	copy(out, citations.KnownSources)
	return out
}

// FallbackSources selects sources by scanning the query for indicator
// keywords. No keyword match selects the full set; any match always adds the
// local specialist so indexed material is never skipped.
func FallbackSources(query string) []string {
	queryLower := strings.ToLower(query)

	var matched []string
	for _, entry := range keywordTable {
		for _, kw := range entry.keywords {
			if strings.Contains(queryLower, kw) {
				matched = append(matched, entry.source)
				break
			}
		}
	}

	if len(matched) == 0 {
		return AllSources()
	}

	for _, s := range matched {
		if s == citations.SourceLocal {
			return matched
		}
	}
	return append(matched, citations.SourceLocal)
}

// Validate splits a classifier-proposed source list into known and unknown
// identifiers, deduplicating while preserving order.
func Validate(sources []string) (valid, dropped []string) {
	seen := make(map[string]bool)
	for _, s := range sources {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		if citations.IsKnownSource(s) {
			valid = append(valid, s)
		} else {
			dropped = append(dropped, s)
		}
	}
	return valid, dropped
}

// FilterEnabled removes sources whose specialist is disabled by
// configuration. A nil map means everything is enabled.
func FilterEnabled(sources []string, enabled map[string]bool) []string {
	if enabled == nil {
		return sources
	}
	var out []string
	for _, s := range sources {
		if on, ok := enabled[s]; !ok || on {
			out = append(out, s)
		}
	}
	return out
}
