package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPDFScraper_Scrape(t *testing.T) {
	var got ocrRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"pages":[{"index":0,"markdown":"# Intro"},{"index":1,"markdown":"More"}]}`))
	}))
	defer srv.Close()

	s := NewPDFScraper("key", srv.Client())
	s.BaseURL = srv.URL

	text, err := s.Scrape(context.Background(), "http://arxiv.org/pdf/1")
	require.NoError(t, err)

	assert.Equal(t, "Bearer key", auth)
	assert.Equal(t, DefaultOCRModel, got.Model)
	assert.Equal(t, "https://arxiv.org/pdf/1", got.Document.DocumentURL)
	assert.Equal(t, "-----\n# URL: https://arxiv.org/pdf/1\n-----\n\n- Page 0 -\n# Intro\n\n- Page 1 -\nMore\n\n", text)
}

func TestPDFScraper_Errors(t *testing.T) {
	_, err := NewPDFScraper("", nil).Scrape(context.Background(), "https://x")
	assert.ErrorIs(t, err, ErrNoAPIKey)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewPDFScraper("key", srv.Client())
	s.BaseURL = srv.URL
	_, err = s.Scrape(context.Background(), "https://x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "quota")
}
