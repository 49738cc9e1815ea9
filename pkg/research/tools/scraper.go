package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	DefaultOCRURL   = "https://api.mistral.ai/v1/ocr"
	DefaultOCRModel = "mistral-ocr-latest"
)

// ErrNoAPIKey is returned by Scrape when the scraper has no API key.
var ErrNoAPIKey = errors.New("MISTRAL_API_KEY is not set")

type PdfScrapeResponsePage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type OcrResponse struct {
	Pages []PdfScrapeResponsePage `json:"pages"`
}

type ocrDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

type ocrRequest struct {
	Model              string      `json:"model"`
	Document           ocrDocument `json:"document"`
	IncludeImageBase64 bool        `json:"include_image_base64"`
}

// PDFScraper extracts the text of a PDF as markdown through the Mistral OCR
// API.
type PDFScraper struct {
	APIKey  string
	BaseURL string
	Model   string
	HTTP    *http.Client
}

func NewPDFScraper(apiKey string, httpClient *http.Client) *PDFScraper {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &PDFScraper{APIKey: apiKey, BaseURL: DefaultOCRURL, Model: DefaultOCRModel, HTTP: httpClient}
}

// Scrape returns the document at pdfURL as markdown, one section per page.
func (s *PDFScraper) Scrape(ctx context.Context, pdfURL string) (string, error) {
	if s.APIKey == "" {
		return "", ErrNoAPIKey
	}
	pdfURL = strings.Replace(pdfURL, "http://", "https://", 1)

	jsonBody, err := json.Marshal(ocrRequest{
		Model:    s.Model,
		Document: ocrDocument{Type: "document_url", DocumentURL: pdfURL},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API request failed with status: %s, body: %s", resp.Status, truncate(string(body), maxErrorBody))
	}

	var ocr OcrResponse
	if err := json.Unmarshal(body, &ocr); err != nil {
		return "", fmt.Errorf("failed to unmarshal OCR response: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("-----\n")
	fmt.Fprintf(&sb, "# URL: %s\n", pdfURL)
	sb.WriteString("-----\n\n")
	for _, page := range ocr.Pages {
		fmt.Fprintf(&sb, "- Page %d -\n", page.Index)
		sb.WriteString(page.Markdown + "\n\n")
	}
	return sb.String(), nil
}
