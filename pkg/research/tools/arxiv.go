package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultArxivURL   = "https://export.arxiv.org/api/query"
	defaultMaxResults = 5
	maxErrorBody      = 500
)

// ArxivEntry struct to hold arXiv entry data
type ArxivEntry struct {
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []ArxivLink `xml:"link"`
}

// ArxivLink struct to hold arXiv link data
type ArxivLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
}

// ArxivFeed struct to hold the entire arXiv feed
type ArxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []ArxivEntry `xml:"entry"`
}

// Paper is one search hit with whitespace in title and summary collapsed.
type Paper struct {
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	Published string `json:"published"`
	PDFURL    string `json:"pdf_url,omitempty"`
}

// ArxivClient queries the arXiv export API.
type ArxivClient struct {
	BaseURL string
	HTTP    *http.Client
	Logger  *slog.Logger
}

func NewArxivClient(httpClient *http.Client) *ArxivClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ArxivClient{BaseURL: DefaultArxivURL, HTTP: httpClient, Logger: slog.Default()}
}

// Search returns up to maxResults papers for query. A non-positive
// maxResults means 5.
func (c *ArxivClient) Search(ctx context.Context, query string, maxResults int) ([]Paper, error) {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	params := url.Values{}
	params.Add("search_query", query)
	params.Add("max_results", strconv.Itoa(maxResults))
	params.Add("start", "0")
	apiURL := c.BaseURL + "?" + params.Encode()

	c.Logger.Info("Searching arXiv", "query", query, "max_results", maxResults)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.Logger.Error("API returned non-200 status code", "status", resp.StatusCode)
		return nil, fmt.Errorf("API returned non-200 status code: %d, body: %s", resp.StatusCode, truncate(string(body), maxErrorBody))
	}

	var feed ArxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal XML: %w", err)
	}

	papers := make([]Paper, 0, len(feed.Entry))
	for _, entry := range feed.Entry {
		p := Paper{
			Title:     collapse(entry.Title),
			Summary:   collapse(entry.Summary),
			Published: strings.TrimSpace(entry.Published),
		}
		for _, link := range entry.Link {
			if link.Type == "application/pdf" {
				p.PDFURL = link.Href
				break
			}
		}
		if p.Title != "" {
			papers = append(papers, p)
		}
	}

	c.Logger.Info("arXiv search done", "query", query, "count", len(papers))
	return papers, nil
}

// FormatPapers renders papers as markdown for an LLM to read.
func FormatPapers(query string, papers []Paper) string {
	if len(papers) == 0 {
		return "No results found for query: " + query
	}

	var sb strings.Builder
	for _, p := range papers {
		fmt.Fprintf(&sb, "# Title: %s\n", p.Title)
		fmt.Fprintf(&sb, "## Summary: %s\n", p.Summary)
		fmt.Fprintf(&sb, "## Published: %s\n", p.Published)
		if p.PDFURL != "" {
			fmt.Fprintf(&sb, "## PDF Link: %s\n", p.PDFURL)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
