package research

import (
	"context"
	"iter"
	"sync"

	"github.com/mikeboe/agent-relay/pkg/research/tools"
)

// Researcher produces a research report for a topic, possibly in pieces.
type Researcher interface {
	Research(ctx context.Context, topic string) iter.Seq2[string, error]
}

// Searcher finds papers for a query.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]tools.Paper, error)
}

// Scraper fetches the full text behind a source URL.
type Scraper interface {
	Scrape(ctx context.Context, url string) (string, error)
}

// Config tunes the engine's research loop.
type Config struct {
	MaxIterations   int
	ResultsPerQuery int
	MinScore        int
	MaxConcurrency  int
}

func DefaultConfig() Config {
	return Config{
		MaxIterations:   3,
		ResultsPerQuery: 2,
		MinScore:        7,
		MaxConcurrency:  3,
	}
}

// Source is a candidate document found while researching.
type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

func sourceFromPaper(p tools.Paper) Source {
	return Source{Title: p.Title, URL: p.PDFURL, Snippet: p.Summary}
}

// key identifies a source in the index and across iterations.
func (s Source) key() string {
	if s.URL != "" {
		return s.URL
	}
	return s.Title
}

// Progress is a snapshot of a run, reported after each phase that changes it.
type Progress struct {
	Topic         string `json:"topic"`
	Iteration     int    `json:"iteration"`
	MaxIterations int    `json:"max_iterations"`
	Facts         int    `json:"facts"`
	Sources       int    `json:"sources"`
	Focus         string `json:"focus,omitempty"`
}

// state tracks one research run. mu guards the fields written by the
// concurrent acquire workers.
type state struct {
	topic         string
	focus         string
	iteration     int
	maxIterations int

	mu        sync.Mutex
	processed map[string]bool
	facts     []string
	sources   []Source
}

func newState(topic string, maxIterations int) *state {
	return &state{
		topic:         topic,
		maxIterations: maxIterations,
		processed:     make(map[string]bool),
	}
}

func (s *state) progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Progress{
		Topic:         s.topic,
		Iteration:     s.iteration,
		MaxIterations: s.maxIterations,
		Facts:         len(s.facts),
		Sources:       len(s.sources),
		Focus:         s.focus,
	}
}

// claim marks a source as processed and reports whether this call did so.
func (s *state) claim(src Source) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processed[src.key()] {
		return false
	}
	s.processed[src.key()] = true
	return true
}

func (s *state) record(src Source, fact string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = append(s.facts, fact)
	s.sources = append(s.sources, src)
}
