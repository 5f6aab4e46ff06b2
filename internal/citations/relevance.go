package citations

import (
	"strings"
	"unicode"
)

// Title markers that disqualify a citation from the permissive fallback rule.
var titleDenylist = []string{"error", "not found", "invalid", "unavailable", "failed"}

const minTokenLength = 3

// FilterRelevant keeps citations that plausibly support the answer. Rules are
// applied in order; the first match includes the citation:
//  1. the citation's source-specific identifier appears in the answer
//  2. a title token appears in the answer
//  3. the URL appears verbatim in the answer
//  4. a query token appears in the title or snippet
//  5. permissive fallback: well-formed citation whose title carries no
//     error marker
//
// The rule set intentionally favors inclusion: dropping a citation a reader
// might want is worse than keeping a marginal one.
func FilterRelevant(cits []Citation, answer, query string) []Citation {
	answerLower := strings.ToLower(answer)
	queryTokens := tokenize(query)

	var kept []Citation
	for _, c := range cits {
		if isRelevant(c, answerLower, queryTokens) {
			kept = append(kept, c)
		}
	}
	return kept
}

func isRelevant(c Citation, answerLower string, queryTokens []string) bool {
	if id := sourceIdentifier(c); id != "" && strings.Contains(answerLower, strings.ToLower(id)) {
		return true
	}

	for _, tok := range tokenize(c.Title) {
		if strings.Contains(answerLower, tok) {
			return true
		}
	}

	if c.URL != "" && strings.Contains(answerLower, strings.ToLower(c.URL)) {
		return true
	}

	haystack := strings.ToLower(c.Title + " " + c.Snippet)
	for _, tok := range queryTokens {
		if strings.Contains(haystack, tok) {
			return true
		}
	}

	return permissiveFallback(c)
}

// permissiveFallback admits any well-formed citation: non-empty URL, a title
// longer than five characters, and no error marker in the title.
func permissiveFallback(c Citation) bool {
	if strings.TrimSpace(c.URL) == "" {
		return false
	}
	title := strings.TrimSpace(c.Title)
	if len([]rune(title)) <= 5 {
		return false
	}
	titleLower := strings.ToLower(title)
	for _, marker := range titleDenylist {
		if strings.Contains(titleLower, marker) {
			return false
		}
	}
	return true
}

// sourceIdentifier returns the citation's source-specific resource identifier
// (paper id, video id, repo name, file path) when one can be determined.
func sourceIdentifier(c Citation) string {
	switch c.SourceType {
	case SourceAcademic:
		if id := c.MetaString("arxiv_id"); id != "" {
			return id
		}
		return ArxivID(c.URL)
	case SourceVideo:
		if id := c.MetaString("video_id"); id != "" {
			return id
		}
		return VideoID(c.URL)
	case SourceRepository:
		if repo := c.MetaString("repo"); repo != "" {
			return repo
		}
		return RepoFullName(c.URL)
	case SourceLocal:
		return c.MetaString("source_path")
	}
	return ""
}

// tokenize splits text on non-alphanumeric boundaries and returns lowercase
// tokens of at least minTokenLength characters.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var tokens []string
	for _, f := range fields {
		if len([]rune(f)) >= minTokenLength {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
