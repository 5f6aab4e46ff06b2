package citations

import (
	"net/url"
	"regexp"
	"strings"
)

// Snippet length cap applied when citations are built from tool results
const MaxSnippetLength = 300

// Source types for citation records. These double as specialist identifiers.
const (
	SourceAcademic   = "academic"
	SourceVideo      = "video"
	SourceRepository = "repository"
	SourceWeb        = "web"
	SourceLocal      = "local"
)

// KnownSources is the fixed set of specialist identifiers.
var KnownSources = []string{SourceAcademic, SourceVideo, SourceRepository, SourceWeb, SourceLocal}

// IsKnownSource reports whether id names a registered specialist.
func IsKnownSource(id string) bool {
	for _, s := range KnownSources {
		if s == id {
			return true
		}
	}
	return false
}

// Citation represents a single source citation extracted from a tool result
type Citation struct {
	SourceType string                 `json:"source_type"`
	Title      string                 `json:"title"`
	URL        string                 `json:"url"`
	Snippet    string                 `json:"snippet"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// MetaString returns a string-valued metadata field, or "" when absent.
func (c Citation) MetaString(key string) string {
	if c.Metadata == nil {
		return ""
	}
	if v, ok := c.Metadata[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

var arxivPathRe = regexp.MustCompile(`(?i)arxiv\.org/(?:pdf|abs|html)/([0-9.]+)`)

// ArxivID extracts the arXiv identifier from any of the pdf/abs/html URL
// variants, stripping a trailing version suffix and file extension.
// Examples:
//
//	https://arxiv.org/abs/1706.03762     -> 1706.03762
//	https://arxiv.org/pdf/1706.03762v5   -> 1706.03762
//	https://arxiv.org/pdf/1706.03762.pdf -> 1706.03762
func ArxivID(rawURL string) string {
	m := arxivPathRe.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	id := strings.TrimSuffix(m[1], ".pdf")
	id = strings.TrimRight(id, ".")
	if i := strings.LastIndexByte(id, 'v'); i > 0 {
		id = id[:i]
	}
	return id
}

// VideoID extracts the video identifier from watch-style and short-form URLs.
func VideoID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	if strings.Contains(strings.ToLower(u.Host), "youtu.be") {
		return strings.Trim(u.Path, "/")
	}
	return ""
}

// RepoFullName extracts "owner/name" from a repository URL path.
func RepoFullName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if !strings.Contains(strings.ToLower(u.Host), "github.com") {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return ""
	}
	return parts[0] + "/" + parts[1]
}

// CanonicalURL normalizes a URL before it is used as a dedup key.
//   - fragment is always stripped
//   - the query string is stripped, except for video URLs where only the
//     video id parameter is kept (it is the resource identifier)
//   - arXiv pdf/abs/html variants and version suffixes collapse to the
//     canonical abstract URL
//   - trailing slashes are stripped
func CanonicalURL(rawURL, sourceType string) string {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return ""
	}

	if id := ArxivID(raw); id != "" {
		return "https://arxiv.org/abs/" + id
	}

	if sourceType == SourceVideo {
		if u, err := url.Parse(raw); err == nil {
			if id := VideoID(raw); id != "" {
				u.Fragment = ""
				u.RawQuery = url.Values{"v": []string{id}}.Encode()
				return strings.TrimRight(u.String(), "/")
			}
		}
	}

	// Non-video sources carry no meaningful query parameters.
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimRight(raw, "/")
}

// CanonicalKey returns the deduplication key for a citation. The key is
// source-type-specific so the same resource reached through different URL
// shapes collapses to one entry.
func CanonicalKey(c Citation) string {
	switch c.SourceType {
	case SourceAcademic:
		if id := c.MetaString("arxiv_id"); id != "" {
			return "arxiv:" + strings.ToLower(id)
		}
		if id := ArxivID(c.URL); id != "" {
			return "arxiv:" + strings.ToLower(id)
		}
	case SourceVideo:
		if id := c.MetaString("video_id"); id != "" {
			return "youtube:" + strings.ToLower(id)
		}
		if id := VideoID(c.URL); id != "" {
			return "youtube:" + strings.ToLower(id)
		}
	case SourceRepository:
		if repo := c.MetaString("repo"); repo != "" {
			return "github:" + strings.ToLower(repo)
		}
		if repo := RepoFullName(c.URL); repo != "" {
			return "github:" + strings.ToLower(repo)
		}
	case SourceLocal:
		if p := c.MetaString("source_path"); p != "" {
			return "local:" + strings.ToLower(p)
		}
	}
	return strings.TrimRight(strings.ToLower(CanonicalURL(c.URL, c.SourceType)), "/")
}

// Deduplicate removes duplicate citations by canonical key, keeping the first
// occurrence and filling missing title/snippet from later duplicates.
// Citations without a URL are dropped; they cannot be surfaced to the user.
func Deduplicate(cits []Citation) []Citation {
	index := make(map[string]int)
	var deduped []Citation

	for _, c := range cits {
		if strings.TrimSpace(c.URL) == "" {
			continue
		}
		key := CanonicalKey(c)
		if idx, ok := index[key]; ok {
			if deduped[idx].Title == "" && c.Title != "" {
				deduped[idx].Title = c.Title
			}
			if deduped[idx].Snippet == "" && c.Snippet != "" {
				deduped[idx].Snippet = c.Snippet
			}
			continue
		}
		index[key] = len(deduped)
		deduped = append(deduped, c)
	}

	return deduped
}

// ExtractDomain returns the lowercase host from a URL, removing any port and a
// leading "www." but preserving other subdomains when present.
func ExtractDomain(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	host := strings.ToLower(parsed.Host)
	if colonIndex := strings.Index(host, ":"); colonIndex != -1 {
		host = host[:colonIndex]
	}
	host = strings.TrimPrefix(host, "www.")
	return host, nil
}

// TruncateSnippet returns s truncated to at most max runes, appending "..."
// when truncated.
func TruncateSnippet(s string, max int) string {
	if max <= 0 || s == "" {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
