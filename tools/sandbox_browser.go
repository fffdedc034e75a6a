package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// ============================================================================
// SANDBOX BROWSER: compensates for models without native web_search /
// web_extractor support. search() tries a primary engine and falls back to
// a secondary one on failure; fetch() strips markup and truncates output.
// ============================================================================

const sandboxBrowserMaxContentChars = 15000

type searchBackend interface {
	search(ctx context.Context, query string, numResults int) ([]searchHit, error)
	name() string
}

type searchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SandboxBrowserTool exposes search+fetch over HTTP, with a two-backend
// fallback on search and an HTML-to-text extractor on fetch.
type SandboxBrowserTool struct {
	primary    searchBackend
	fallback   searchBackend
	httpClient *http.Client
	timeout    time.Duration
}

func NewSandboxBrowserTool(timeout time.Duration) *SandboxBrowserTool {
	return &SandboxBrowserTool{
		primary:    &duckDuckGoBackend{client: &http.Client{Timeout: timeout}},
		fallback:   &bingBackend{client: &http.Client{Timeout: timeout}},
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
	}
}

func (t *SandboxBrowserTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        "sandbox_browser",
		Description: "Search the web or fetch a URL's text content. Operations: search(query, num_results), fetch(url, extract_content).",
		Parameters:  ParametersFromStruct(browserArgs{}),
		ServerURL:   "local",
	}
}

func (t *SandboxBrowserTool) GetName() string        { return "sandbox_browser" }
func (t *SandboxBrowserTool) GetDescription() string { return t.GetInfo().Description }

type browserArgs struct {
	Operation      string `mapstructure:"operation" jsonschema:"required,enum=search,enum=fetch,description=search or fetch"`
	Query          string `mapstructure:"query" jsonschema:"description=search query (operation=search)"`
	NumResults     int    `mapstructure:"num_results" jsonschema:"default=5,description=max results (operation=search)"`
	URL            string `mapstructure:"url" jsonschema:"description=URL to fetch (operation=fetch)"`
	ExtractContent bool   `mapstructure:"extract_content" jsonschema:"default=true,description=strip markup and return plain text"`
}

func (t *SandboxBrowserTool) Execute(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	start := time.Now()

	var parsed browserArgs
	parsed.NumResults = 5
	parsed.ExtractContent = true
	if err := mapstructure.Decode(args, &parsed); err != nil {
		return t.fail(start, fmt.Errorf("invalid arguments: %w", err))
	}

	switch parsed.Operation {
	case "search":
		return t.search(ctx, start, parsed)
	case "fetch":
		return t.fetch(ctx, start, parsed)
	default:
		return t.fail(start, fmt.Errorf("unknown operation %q", parsed.Operation))
	}
}

func (t *SandboxBrowserTool) search(ctx context.Context, start time.Time, args browserArgs) (ToolResult, error) {
	if args.Query == "" {
		return t.fail(start, fmt.Errorf("query is required for search"))
	}
	n := args.NumResults
	if n <= 0 {
		n = 5
	}

	hits, err := t.primary.search(ctx, args.Query, n)
	backendUsed := t.primary.name()
	if err != nil {
		hits, err = t.fallback.search(ctx, args.Query, n)
		backendUsed = t.fallback.name()
		if err != nil {
			return t.fail(start, fmt.Errorf("all search backends failed: %w", err))
		}
	}

	return ToolResult{
		Success:       true,
		Output:        hits,
		ToolName:      "sandbox_browser",
		ExecutionTime: time.Since(start),
		Metadata:      map[string]interface{}{"backend": backendUsed, "count": len(hits)},
	}, nil
}

var (
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style|head|svg|noscript)[^>]*>.*?</\s*` + `(script|style|head|svg|noscript)\s*>`)
	tagRe         = regexp.MustCompile(`(?s)<[^>]*>`)
	titleRe       = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	wsRe          = regexp.MustCompile(`\s+`)
)

func (t *SandboxBrowserTool) fetch(ctx context.Context, start time.Time, args browserArgs) (ToolResult, error) {
	if args.URL == "" {
		return t.fail(start, fmt.Errorf("url is required for fetch"))
	}

	var body []byte
	var err error
	for attempt := 0; attempt <= 2; attempt++ {
		body, err = t.fetchOnce(ctx, args.URL)
		if err == nil {
			break
		}
		if attempt < 2 {
			select {
			case <-ctx.Done():
				return t.fail(start, ctx.Err())
			case <-time.After(time.Duration(attempt+1) * time.Second):
			}
		}
	}
	if err != nil {
		return ToolResult{
			Success: false, Error: err.Error(), ToolName: "sandbox_browser", ExecutionTime: time.Since(start),
			Output: map[string]interface{}{"success": false, "url": args.URL},
		}, err
	}

	html := string(body)
	title := firstMatch(titleRe, html)

	content := html
	if args.ExtractContent {
		content = extractText(html)
	}
	if len(content) > sandboxBrowserMaxContentChars {
		content = content[:sandboxBrowserMaxContentChars]
	}

	return ToolResult{
		Success:       true,
		ToolName:      "sandbox_browser",
		ExecutionTime: time.Since(start),
		Output: map[string]interface{}{
			"success": true,
			"url":     args.URL,
			"title":   title,
			"content": content,
		},
	}, nil
}

func (t *SandboxBrowserTool) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; SandboxBrowser/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch failed with status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func extractText(html string) string {
	stripped := scriptStyleRe.ReplaceAllString(html, " ")
	stripped = tagRe.ReplaceAllString(stripped, " ")
	stripped = wsRe.ReplaceAllString(stripped, " ")
	return strings.TrimSpace(stripped)
}

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func (t *SandboxBrowserTool) fail(start time.Time, err error) (ToolResult, error) {
	return ToolResult{Success: false, Error: err.Error(), ToolName: "sandbox_browser", ExecutionTime: time.Since(start)}, err
}

// ----------------------------------------------------------------------------
// search backends
// ----------------------------------------------------------------------------

type duckDuckGoBackend struct{ client *http.Client }

func (b *duckDuckGoBackend) name() string { return "duckduckgo" }

func (b *duckDuckGoBackend) search(ctx context.Context, query string, n int) ([]searchHit, error) {
	url := "https://html.duckduckgo.com/html/?q=" + strings.ReplaceAll(query, " ", "+")
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; SandboxBrowser/1.0)")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo search failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseDuckDuckGoResults(string(body), n), nil
}

var ddgResultRe = regexp.MustCompile(`(?is)<a[^>]+class="result__a"[^>]+href="([^"]+)"[^>]*>(.*?)</a>`)

func parseDuckDuckGoResults(html string, n int) []searchHit {
	matches := ddgResultRe.FindAllStringSubmatch(html, -1)
	hits := make([]searchHit, 0, len(matches))
	for _, m := range matches {
		if len(hits) >= n {
			break
		}
		title := strings.TrimSpace(tagRe.ReplaceAllString(m[2], ""))
		hits = append(hits, searchHit{Title: title, URL: m[1]})
	}
	return hits
}

// bingBackend is the fallback engine used when the primary fails.
type bingBackend struct{ client *http.Client }

func (b *bingBackend) name() string { return "bing" }

func (b *bingBackend) search(ctx context.Context, query string, n int) ([]searchHit, error) {
	url := "https://www.bing.com/search?q=" + strings.ReplaceAll(query, " ", "+")
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; SandboxBrowser/1.0)")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bing search failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseBingResults(string(body), n), nil
}

var bingResultRe = regexp.MustCompile(`(?is)<h2><a href="([^"]+)"[^>]*>(.*?)</a></h2>`)

func parseBingResults(html string, n int) []searchHit {
	matches := bingResultRe.FindAllStringSubmatch(html, -1)
	hits := make([]searchHit, 0, len(matches))
	for _, m := range matches {
		if len(hits) >= n {
			break
		}
		title := strings.TrimSpace(tagRe.ReplaceAllString(m[2], ""))
		hits = append(hits, searchHit{Title: title, URL: m[1]})
	}
	return hits
}
