package specialists

import (
	"fmt"
	"path"
	"strings"

	"github.com/verity-labs/research-orchestrator/internal/citations"
)

// Default per-source citation parsers. Each receives one structured
// tool-result item and returns at most one citation. They tolerate partial
// items; only a missing resource identifier is an error.

func itemString(item map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := item[k].(string); ok {
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// ParseAcademic builds a citation from a paper search/detail result.
func ParseAcademic(toolName string, args map[string]interface{}, item map[string]interface{}) (*citations.Citation, error) {
	url := itemString(item, "entry_id", "url", "pdf_url", "html_url")
	if url == "" {
		return nil, fmt.Errorf("academic result has no url")
	}

	meta := map[string]interface{}{}
	arxivID := itemString(item, "arxiv_id")
	if arxivID == "" {
		arxivID = citations.ArxivID(url)
	}
	if arxivID != "" {
		meta["arxiv_id"] = arxivID
	}
	if authors, ok := item["authors"]; ok {
		meta["authors"] = authors
	}
	if published := itemString(item, "published"); published != "" {
		meta["published"] = published
	}

	title := itemString(item, "title")
	if title == "" && arxivID != "" {
		title = "arXiv:" + arxivID
	}

	return &citations.Citation{
		SourceType: citations.SourceAcademic,
		Title:      title,
		URL:        citations.CanonicalURL(url, citations.SourceAcademic),
		Snippet:    citations.TruncateSnippet(itemString(item, "summary", "abstract", "snippet"), citations.MaxSnippetLength),
		Metadata:   meta,
	}, nil
}

// ParseVideo builds a citation from a video search/transcript result.
func ParseVideo(toolName string, args map[string]interface{}, item map[string]interface{}) (*citations.Citation, error) {
	url := itemString(item, "url", "video_url")
	videoID := itemString(item, "video_id", "id")
	if videoID == "" {
		videoID = citations.VideoID(url)
	}
	if url == "" && videoID != "" {
		url = "https://www.youtube.com/watch?v=" + videoID
	}
	if url == "" {
		return nil, fmt.Errorf("video result has no url or video id")
	}

	meta := map[string]interface{}{}
	if videoID != "" {
		meta["video_id"] = videoID
	}
	if channel := itemString(item, "channel", "channel_title"); channel != "" {
		meta["channel"] = channel
	}

	return &citations.Citation{
		SourceType: citations.SourceVideo,
		Title:      itemString(item, "title"),
		URL:        citations.CanonicalURL(url, citations.SourceVideo),
		Snippet:    citations.TruncateSnippet(itemString(item, "description", "snippet"), citations.MaxSnippetLength),
		Metadata:   meta,
	}, nil
}

// ParseRepository builds a citation from a repository search/detail result.
func ParseRepository(toolName string, args map[string]interface{}, item map[string]interface{}) (*citations.Citation, error) {
	url := itemString(item, "html_url", "url")
	if url == "" {
		return nil, fmt.Errorf("repository result has no url")
	}

	repo := itemString(item, "full_name", "repo")
	if repo == "" {
		repo = citations.RepoFullName(url)
	}

	meta := map[string]interface{}{}
	if repo != "" {
		meta["repo"] = repo
	}
	if lang := itemString(item, "language"); lang != "" {
		meta["language"] = lang
	}
	if stars, ok := item["stargazers_count"]; ok {
		meta["stars"] = stars
	}

	title := itemString(item, "full_name", "name")
	return &citations.Citation{
		SourceType: citations.SourceRepository,
		Title:      title,
		URL:        citations.CanonicalURL(url, citations.SourceRepository),
		Snippet:    citations.TruncateSnippet(itemString(item, "description", "snippet"), citations.MaxSnippetLength),
		Metadata:   meta,
	}, nil
}

// ParseWeb builds a citation from a web search result.
func ParseWeb(toolName string, args map[string]interface{}, item map[string]interface{}) (*citations.Citation, error) {
	url := itemString(item, "url", "link")
	if url == "" {
		return nil, fmt.Errorf("web result has no url")
	}
	return &citations.Citation{
		SourceType: citations.SourceWeb,
		Title:      itemString(item, "title"),
		URL:        citations.CanonicalURL(url, citations.SourceWeb),
		Snippet:    citations.TruncateSnippet(itemString(item, "snippet", "text", "content"), citations.MaxSnippetLength),
	}, nil
}

// ParseLocal builds a citation from a local document search result. Local
// results are keyed by source path; a file URL is synthesized when the index
// does not provide one.
func ParseLocal(toolName string, args map[string]interface{}, item map[string]interface{}) (*citations.Citation, error) {
	sourcePath := itemString(item, "source", "source_path", "path", "file_path")
	url := itemString(item, "url")
	if sourcePath == "" && url == "" {
		return nil, fmt.Errorf("local result has no source path")
	}
	if url == "" {
		url = "file://" + sourcePath
	}

	title := itemString(item, "title")
	if title == "" && sourcePath != "" {
		title = path.Base(sourcePath)
	}

	meta := map[string]interface{}{}
	if sourcePath != "" {
		meta["source_path"] = sourcePath
	}
	if page, ok := item["page"]; ok {
		meta["page"] = page
	}

	return &citations.Citation{
		SourceType: citations.SourceLocal,
		Title:      title,
		URL:        url,
		Snippet:    citations.TruncateSnippet(itemString(item, "content", "text", "snippet"), citations.MaxSnippetLength),
		Metadata:   meta,
	}, nil
}
