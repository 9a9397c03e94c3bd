package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/tandemcode/tandem/internal/permission"
)

const webfetchDescription = `Fetches content from a specified URL and returns it in the requested format.

Usage:
- The URL must be a fully-formed valid URL starting with http:// or https://
- This tool is read-only and does not modify any files
- Results may be truncated if the content is very large (>5MB limit)
- Use format "markdown" for readable content, "text" for plain text, "html" for raw HTML`

const (
	webfetchMaxBody        = 5 * 1024 * 1024
	webfetchDefaultTimeout = 30 * time.Second
	webfetchMaxTimeout     = 120 * time.Second
)

// WebFetchTool fetches a URL and renders it as markdown, text or raw
// HTML. Fetches go through the permission gate since they reach
// outside the workspace.
type WebFetchTool struct {
	client *http.Client
}

// WebFetchInput is the webfetch tool's argument object.
type WebFetchInput struct {
	URL     string `json:"url"`
	Format  string `json:"format"`
	Timeout int    `json:"timeout,omitempty"` // seconds
}

// NewWebFetchTool creates the webfetch tool.
func NewWebFetchTool() *WebFetchTool {
	return &WebFetchTool{
		client: &http.Client{Timeout: webfetchMaxTimeout},
	}
}

func (t *WebFetchTool) ID() string          { return "webfetch" }
func (t *WebFetchTool) Description() string { return webfetchDescription }

func (t *WebFetchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {
				"type": "string",
				"description": "The URL to fetch content from"
			},
			"format": {
				"type": "string",
				"enum": ["text", "markdown", "html"],
				"description": "The format to return the content in (text, markdown, or html)"
			},
			"timeout": {
				"type": "integer",
				"description": "Optional timeout in seconds (max 120)"
			}
		},
		"required": ["url", "format"]
	}`)
}

func (t *WebFetchTool) Execute(ctx context.Context, input json.RawMessage, tc *Context) (*Result, error) {
	var params WebFetchInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, Userf("invalid input: %v", err)
	}

	if !strings.HasPrefix(params.URL, "http://") && !strings.HasPrefix(params.URL, "https://") {
		return nil, Userf("URL must start with http:// or https://")
	}
	switch params.Format {
	case "text", "markdown", "html":
	default:
		return nil, Userf("format must be 'text', 'markdown', or 'html'")
	}

	if tc != nil && tc.Gate != nil {
		err := tc.Gate.Require(ctx, permission.Request{
			SessionID: tc.SessionID,
			Tool:      t.ID(),
			Action:    "webfetch",
			Patterns:  []string{params.URL},
			Title:     fmt.Sprintf("Fetch %s", params.URL),
		})
		if err != nil {
			return nil, err
		}
	}

	timeout := webfetchDefaultTimeout
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Second
		if timeout > webfetchMaxTimeout {
			timeout = webfetchMaxTimeout
		}
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, params.URL, nil)
	if err != nil {
		return nil, Userf("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; tandem/1.0)")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	switch params.Format {
	case "markdown":
		req.Header.Set("Accept", "text/markdown;q=1.0, text/plain;q=0.8, text/html;q=0.7, */*;q=0.1")
	case "text":
		req.Header.Set("Accept", "text/plain;q=1.0, text/markdown;q=0.9, text/html;q=0.8, */*;q=0.1")
	default:
		req.Header.Set("Accept", "text/html;q=1.0, application/xhtml+xml;q=0.9, text/plain;q=0.8, */*;q=0.1")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, Transient(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, Transient(fmt.Errorf("request failed with status %d", resp.StatusCode))
		}
		return nil, Userf("request failed with status %d", resp.StatusCode)
	}
	if resp.ContentLength > webfetchMaxBody {
		return nil, Userf("response too large (exceeds 5MB limit)")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, webfetchMaxBody+1))
	if err != nil {
		return nil, Transient(fmt.Errorf("read response: %w", err))
	}
	if len(body) > webfetchMaxBody {
		return nil, Userf("response too large (exceeds 5MB limit)")
	}

	content := string(body)
	contentType := resp.Header.Get("Content-Type")

	var output string
	switch {
	case params.Format == "markdown" && strings.Contains(contentType, "text/html"):
		output, err = htmlToMarkdown(content)
		if err != nil {
			return nil, Userf("failed to convert HTML to markdown: %v", err)
		}
	case params.Format == "text" && strings.Contains(contentType, "text/html"):
		output, err = htmlToText(content)
		if err != nil {
			return nil, Userf("failed to extract text from HTML: %v", err)
		}
	default:
		output = content
	}

	return &Result{
		Title:  fmt.Sprintf("%s (%s)", params.URL, contentType),
		Output: output,
		Metadata: map[string]any{
			"url":         params.URL,
			"contentType": contentType,
			"bytes":       len(body),
		},
	}, nil
}

// htmlToText strips scripts, styles and other non-content elements and
// returns the remaining text.
func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, iframe, object, embed").Remove()
	return strings.TrimSpace(doc.Text()), nil
}

func htmlToMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		HorizontalRule:   "---",
		BulletListMarker: "-",
		CodeBlockStyle:   "fenced",
		EmDelimiter:      "*",
	})
	converter.Remove("script", "style", "meta", "link")
	return converter.ConvertString(html)
}
