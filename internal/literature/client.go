package literature

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the Europe PMC REST endpoint.
const DefaultBaseURL = "https://www.ebi.ac.uk/europepmc/webservices/rest"

// openAccessClause is appended to queries when open access is required.
const openAccessClause = " AND OPEN_ACCESS:Y"

// ClientConfig configures the Europe PMC client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the Europe PMC REST API. All requests pass through the
// shared rate limiter, which callers must size to the remote API's global
// limit across every concurrent session.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a Europe PMC client. The limiter is required; it is the
// process-wide retrieval budget shared by all sessions.
func NewClient(cfg ClientConfig, limiter *rate.Limiter, logger *zap.Logger) (*Client, error) {
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// searchResponse mirrors the Europe PMC /search JSON envelope.
type searchResponse struct {
	NextCursorMark string `json:"nextCursorMark"`
	ResultList     struct {
		Result []searchResult `json:"result"`
	} `json:"resultList"`
}

type searchResult struct {
	PMCID                string `json:"pmcid"`
	Title                string `json:"title"`
	AbstractText         string `json:"abstractText"`
	IsOpenAccess         string `json:"isOpenAccess"` // "Y" or "N"
	FirstPublicationDate string `json:"firstPublicationDate"`
}

// Search pages through /search results for one query until the limit is
// reached or the API is exhausted. Records without a PMC identifier are
// skipped; relevance score is derived from source rank (reciprocal rank,
// first result scores 1.0).
func (c *Client) Search(ctx context.Context, query string, opts SearchOptions) ([]Document, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is empty")
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = pageSize
	}

	searchQuery := query
	if opts.OpenAccessOnly {
		searchQuery += openAccessClause
	}

	var docs []Document
	cursor := "*"
	rank := 0

	for len(docs) < limit {
		page, err := c.searchPage(ctx, searchQuery, cursor, pageSize)
		if err != nil {
			return nil, err
		}
		if len(page.ResultList.Result) == 0 {
			break
		}

		for _, r := range page.ResultList.Result {
			rank++
			if r.PMCID == "" {
				continue
			}
			if opts.OpenAccessOnly && r.IsOpenAccess != "Y" {
				continue
			}
			docs = append(docs, Document{
				ID:          r.PMCID,
				Title:       r.Title,
				Abstract:    r.AbstractText,
				OpenAccess:  r.IsOpenAccess == "Y",
				PublishedAt: r.FirstPublicationDate,
				Score:       1.0 / float64(rank),
			})
			if len(docs) >= limit {
				break
			}
		}

		if page.NextCursorMark == "" || page.NextCursorMark == cursor {
			break
		}
		cursor = page.NextCursorMark
	}

	c.logger.Debug("europe pmc search complete",
		zap.String("query", query),
		zap.Int("documents", len(docs)),
	)
	return docs, nil
}

// searchPage performs one rate-limited /search request.
func (c *Client) searchPage(ctx context.Context, query, cursor string, pageSize int) (*searchResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("format", "json")
	params.Set("pageSize", strconv.Itoa(pageSize))
	params.Set("cursorMark", cursor)

	endpoint := c.baseURL + "/search?" + params.Encode()
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}
	return &resp, nil
}

// FetchSections retrieves full-text XML for a PMC article and extracts the
// canonical sections (abstract, introduction, discussion, conclusion).
// A missing full text is not an error; the returned slice may be empty.
func (c *Client) FetchSections(ctx context.Context, pmcid string) ([]Section, error) {
	if pmcid == "" {
		return nil, fmt.Errorf("pmcid is empty")
	}

	endpoint := fmt.Sprintf("%s/%s/fullTextXML", c.baseURL, url.PathEscape(pmcid))
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	sections, err := parseFullText(body)
	if err != nil {
		return nil, fmt.Errorf("parsing full text for %s: %w", pmcid, err)
	}
	return sections, nil
}

// get performs a rate-limited GET, classifying failures for retry.
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("reading response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &retryableError{err: fmt.Errorf("rate limited (429)")}
	case resp.StatusCode >= 500:
		return nil, &retryableError{err: fmt.Errorf("server error (%d)", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}

// canonicalSections maps section title keywords to canonical names, in
// output order.
var canonicalSections = []struct {
	name     string
	keywords []string
}{
	{"abstract", []string{"abstract"}},
	{"introduction", []string{"introduction", "background"}},
	{"discussion", []string{"discussion"}},
	{"conclusion", []string{"conclusion", "summary", "concluding remarks"}},
}

// parseFullText walks the JATS XML token stream and collects text for each
// canonical section. Nested <sec> text is attributed to every open section
// so a matching outer title captures its whole subtree. The bare <abstract>
// element serves as a fallback when no titled abstract section exists.
func parseFullText(data []byte) ([]Section, error) {
	type secFrame struct {
		title      strings.Builder
		text       strings.Builder
		inTitle    bool
		titleFixed bool
	}

	found := make(map[string]string)
	var stack []*secFrame
	var abstractBuf strings.Builder
	abstractDepth := 0

	dec := xml.NewDecoder(strings.NewReader(string(data)))
	dec.Strict = false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "sec":
				stack = append(stack, &secFrame{})
			case "title":
				if len(stack) > 0 {
					top := stack[len(stack)-1]
					if !top.titleFixed {
						top.inTitle = true
					}
				}
			case "abstract":
				abstractDepth++
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "sec":
				if len(stack) == 0 {
					continue
				}
				frame := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				classifySection(found, frame.title.String(), frame.text.String())
			case "title":
				if len(stack) > 0 {
					top := stack[len(stack)-1]
					if top.inTitle {
						top.inTitle = false
						top.titleFixed = true
					}
				}
			case "abstract":
				if abstractDepth > 0 {
					abstractDepth--
				}
			}
		case xml.CharData:
			text := string(t)
			if abstractDepth > 0 {
				abstractBuf.WriteString(text)
			}
			for _, frame := range stack {
				if frame.inTitle && frame == stack[len(stack)-1] {
					frame.title.WriteString(text)
				} else {
					frame.text.WriteString(text)
				}
			}
		}
	}

	if found["abstract"] == "" {
		if fallback := normalizeSpace(abstractBuf.String()); fallback != "" {
			found["abstract"] = fallback
		}
	}

	var sections []Section
	for _, canonical := range canonicalSections {
		if text := found[canonical.name]; text != "" {
			sections = append(sections, Section{Name: canonical.name, Text: text})
		}
	}
	return sections, nil
}

// classifySection records a section body under its canonical name when the
// title matches and that name is still unset.
func classifySection(found map[string]string, title, text string) {
	title = strings.ToLower(strings.TrimSpace(title))
	body := normalizeSpace(text)
	if title == "" || body == "" {
		return
	}
	for _, canonical := range canonicalSections {
		if found[canonical.name] != "" {
			continue
		}
		for _, kw := range canonical.keywords {
			if strings.Contains(title, kw) {
				found[canonical.name] = body
				return
			}
		}
	}
}

// normalizeSpace collapses runs of whitespace to single spaces.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
