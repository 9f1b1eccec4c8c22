// Package drugevents queries the openFDA FAERS adverse-event API for
// report totals and top reaction terms for a drug.
package drugevents

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the openFDA drug adverse-event endpoint.
const DefaultBaseURL = "https://api.fda.gov/drug/event.json"

const defaultTopN = 15

// Reaction is one MedDRA preferred term with its report count.
type Reaction struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// Report summarizes adverse-event reports for a drug over a date window.
type Report struct {
	Drug         string     `json:"drug"`
	Total        int        `json:"total"`
	TopReactions []Reaction `json:"top_reactions,omitempty"`
}

// Client talks to openFDA.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates an openFDA FAERS client.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Summarize returns the total report count and top reaction terms for the
// drug within the optional YYYYMMDD date range. A zero-match query is a
// valid Report with Total 0, not an error.
func (c *Client) Summarize(ctx context.Context, drug, start, end string) (Report, error) {
	drug = strings.TrimSpace(drug)
	if drug == "" {
		return Report{}, fmt.Errorf("drug name is required")
	}

	search := andJoin(drugQuery(drug), dateRangeClause(start, end))

	total, err := c.total(ctx, search)
	if err != nil {
		return Report{}, err
	}

	report := Report{Drug: drug, Total: total}
	if total == 0 {
		return report, nil
	}

	reactions, err := c.topReactions(ctx, search, defaultTopN)
	if err != nil {
		return Report{}, err
	}
	report.TopReactions = reactions

	c.logger.Debug("drug event summary",
		zap.String("drug", drug),
		zap.Int("total", total),
		zap.Int("reactions", len(reactions)),
	)
	return report, nil
}

type faersResponse struct {
	Meta struct {
		Results struct {
			Total int `json:"total"`
		} `json:"results"`
	} `json:"meta"`
	Results []struct {
		Term  string `json:"term"`
		Count int    `json:"count"`
	} `json:"results"`
}

func (c *Client) total(ctx context.Context, search string) (int, error) {
	params := url.Values{}
	params.Set("search", search)
	params.Set("limit", "1")

	resp, err := c.get(ctx, params)
	if err != nil {
		return 0, err
	}
	return resp.Meta.Results.Total, nil
}

func (c *Client) topReactions(ctx context.Context, search string, topN int) ([]Reaction, error) {
	params := url.Values{}
	params.Set("search", search)
	params.Set("count", "patient.reaction.reactionmeddrapt.exact")
	params.Set("limit", fmt.Sprintf("%d", topN))

	resp, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}

	reactions := make([]Reaction, 0, len(resp.Results))
	for _, r := range resp.Results {
		reactions = append(reactions, Reaction{Term: r.Term, Count: r.Count})
	}
	return reactions, nil
}

// get performs the request. openFDA answers 404 for zero-match queries, so
// 404 decodes as an empty result rather than an error.
func (c *Client) get(ctx context.Context, params url.Values) (*faersResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openfda request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &faersResponse{}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openfda error (%d): %s", resp.StatusCode, string(body))
	}

	var parsed faersResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &parsed, nil
}

// drugQuery matches the drug across the common FAERS name fields.
func drugQuery(drug string) string {
	return fmt.Sprintf(
		`(patient.drug.medicinalproduct:%q) OR patient.drug.openfda.brand_name.exact:%q OR patient.drug.openfda.generic_name.exact:%q`,
		drug, drug, drug,
	)
}

// dateRangeClause builds a receivedate:[YYYYMMDD TO YYYYMMDD] clause, or
// "" when no bound is given.
func dateRangeClause(start, end string) string {
	if start == "" && end == "" {
		return ""
	}
	if start == "" {
		start = "19000101"
	}
	if end == "" {
		end = time.Now().Format("20060102")
	}
	return fmt.Sprintf("receivedate:[%s TO %s]", start, end)
}

func andJoin(clauses ...string) string {
	parts := make([]string, 0, len(clauses))
	for _, c := range clauses {
		if c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " AND ")
}
