package research

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/agent-relay/pkg/clients"
)

const excerptRunes = 500

// Engine runs an iterative plan, source, filter, acquire and reflect loop
// against arXiv and writes a markdown report. Scraper and Index are
// optional.
type Engine struct {
	Config        Config
	LLM           llms.Model
	Search        Searcher
	Scraper       Scraper
	Index         *SourceIndex
	Logger        *slog.Logger
	OnStateUpdate func(Progress)
}

// NewEngine returns an engine with DefaultConfig and no scraper or index.
func NewEngine(llm llms.Model, search Searcher) *Engine {
	return &Engine{
		Config: DefaultConfig(),
		LLM:    llm,
		Search: search,
		Logger: slog.Default(),
	}
}

// Research runs the loop and yields the finished report once.
func (e *Engine) Research(ctx context.Context, topic string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		report, err := e.Run(ctx, topic)
		if err != nil {
			yield("", err)
			return
		}
		yield(report, nil)
	}
}

func (e *Engine) Run(ctx context.Context, topic string) (string, error) {
	st := newState(topic, e.Config.MaxIterations)
	e.Logger.Info("Starting research loop", "topic", topic)
	e.notify(st)

	for st.iteration < st.maxIterations {
		st.iteration++
		e.Logger.Info("Starting iteration", "iteration", st.iteration, "max", st.maxIterations)
		e.notify(st)

		queries, err := e.planPhase(ctx, st)
		if err != nil {
			return "", fmt.Errorf("planning failed: %w", err)
		}
		if len(queries) == 0 {
			e.Logger.Warn("No queries generated")
			break
		}

		results := e.sourcePhase(ctx, queries)

		relevant, err := e.filterPhase(ctx, st, results)
		if err != nil {
			return "", fmt.Errorf("filtering failed: %w", err)
		}
		if len(relevant) == 0 {
			e.Logger.Info("No relevant items found in this iteration")
		}

		summaries := e.acquirePhase(ctx, st, relevant)
		e.notify(st)

		more, focus, err := e.reflectPhase(ctx, st, summaries)
		if err != nil {
			return "", fmt.Errorf("reflection failed: %w", err)
		}
		if !more {
			e.Logger.Info("Research complete")
			break
		}
		if focus != "" {
			e.Logger.Info("Adjusting focus", "focus", focus)
			st.focus = focus
		}
	}

	report, err := e.generateReport(ctx, st)
	if err != nil {
		return "", fmt.Errorf("report failed: %w", err)
	}
	return report, nil
}

func (e *Engine) notify(st *state) {
	if e.OnStateUpdate != nil {
		e.OnStateUpdate(st.progress())
	}
}

func (e *Engine) planPhase(ctx context.Context, st *state) ([]string, error) {
	e.Logger.Info("Starting planning phase")

	systemPrompt := `You are a research planner.
Generate 3 specific search queries for the arXiv search API to gather information about the topic.`

	input := fmt.Sprintf("Topic: %s\nCurrent Iteration: %d\nAccumulated Facts: %d", st.topic, st.iteration, len(st.facts))
	if st.focus != "" {
		input += "\nFocus for this iteration: " + st.focus
	}

	var resp struct {
		Queries []string `json:"queries"`
	}
	_, err := clients.GenerateWithRetry(ctx, e.LLM, e.Logger, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt+"\n\n# Response Format: \n\n"+searchQueriesSchema),
		llms.TextParts(llms.ChatMessageTypeHuman, input),
	}, func(content string) error {
		resp.Queries = nil
		if err := json.Unmarshal([]byte(content), &resp); err != nil {
			return fmt.Errorf("json parse error: %w (content: %s)", err, truncateRunes(content, 200))
		}
		if len(resp.Queries) == 0 {
			return fmt.Errorf("empty queries list")
		}
		return nil
	}, llms.WithJSONMode())
	if err != nil {
		return nil, err
	}

	e.Logger.Info("Generated queries", "queries", resp.Queries)
	return resp.Queries, nil
}

const searchQueriesSchema = `Return the JSON object directly without any formatting or additional text. The JSON object should have the following structure as defined in the schema. Make sure to answer in valid json and include all necessary properties:{
  "type": "object",
  "properties": {
    "queries": {
      "type": "array",
      "items": {
        "type": "string"
      },
      "description": "List of 3 specific search queries"
    }
  },
  "required": ["queries"]
}`

// sourcePhase searches every query concurrently and dedupes by title. Failed
// searches are logged and skipped.
func (e *Engine) sourcePhase(ctx context.Context, queries []string) []Source {
	e.Logger.Info("Starting sourcing phase")
	perQuery := make([][]Source, len(queries))
	var wg sync.WaitGroup

	for i, q := range queries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			papers, err := e.Search.Search(ctx, q, e.Config.ResultsPerQuery)
			if err != nil {
				e.Logger.Error("arXiv search failed", "query", q, "error", err)
				return
			}
			for _, p := range papers {
				perQuery[i] = append(perQuery[i], sourceFromPaper(p))
			}
		}()
	}
	wg.Wait()

	var unique []Source
	seen := make(map[string]bool)
	for _, results := range perQuery {
		for _, r := range results {
			if !seen[r.Title] {
				seen[r.Title] = true
				unique = append(unique, r)
			}
		}
	}
	return unique
}

func (e *Engine) filterPhase(ctx context.Context, st *state, results []Source) ([]Source, error) {
	e.Logger.Info("Starting filtering phase")
	if len(results) == 0 {
		return nil, nil
	}

	var papers strings.Builder
	for i, r := range results {
		fmt.Fprintf(&papers, "ID: %d\nTitle: %s\nSummary: %s\n\n", i, r.Title, r.Snippet)
	}

	systemPrompt := `You are a research filter.
Evaluate the relevance of the following papers to the research topic.
Score each paper from 0-10 (10 being most relevant).
Return a JSON object mapping ID to score.`

	schema := `{"type": "object", "properties": {"scores": {"type": "array", "items": {"type": "object", "properties": {"id": {"type": "integer"}, "score": {"type": "integer"}}, "required": ["id", "score"]}}}, "required": ["scores"]}`

	type scoreItem struct {
		ID    int `json:"id"`
		Score int `json:"score"`
	}
	var resp struct {
		Scores []scoreItem `json:"scores"`
	}

	_, err := clients.GenerateWithRetry(ctx, e.LLM, e.Logger, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt+"\n\n# Response Format:\n"+schema),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf("Topic: %s\n\nPapers:\n%s", st.topic, papers.String())),
	}, func(content string) error {
		resp.Scores = nil
		if err := json.Unmarshal([]byte(content), &resp); err != nil {
			return fmt.Errorf("json parse error: %w", err)
		}
		return nil
	}, llms.WithJSONMode())
	if err != nil {
		return nil, err
	}

	var relevant []Source
	kept := make(map[int]bool)
	for _, item := range resp.Scores {
		if item.ID < 0 || item.ID >= len(results) || kept[item.ID] {
			continue
		}
		if item.Score >= e.Config.MinScore {
			kept[item.ID] = true
			relevant = append(relevant, results[item.ID])
			e.Logger.Info("Keeping paper", "title", results[item.ID].Title, "score", item.Score)
		}
	}

	e.Logger.Info("Filtering complete", "total", len(results), "relevant", len(relevant))
	return relevant, nil
}

// acquirePhase reads each new source, indexes it when an index is set, and
// records a short fact for reflection and the report.
func (e *Engine) acquirePhase(ctx context.Context, st *state, items []Source) []string {
	e.Logger.Info("Starting acquire phase", "items", len(items))
	var summaries []string
	var mu sync.Mutex
	var wg sync.WaitGroup

	limit := max(e.Config.MaxConcurrency, 1)
	semaphore := make(chan struct{}, limit)

	for _, item := range items {
		if !st.claim(item) {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			fullText := e.fullText(ctx, item)

			if e.Index != nil {
				if _, err := e.Index.Index(ctx, item, fullText); err != nil {
					e.Logger.Error("Failed to index source", "title", item.Title, "error", err)
				}
			}

			summary := fmt.Sprintf("Source: %s\nSummary: %s\nExcerpts: %s...",
				item.Title, item.Snippet, truncateRunes(fullText, excerptRunes))

			st.record(item, summary)
			mu.Lock()
			summaries = append(summaries, summary)
			mu.Unlock()
		}()
	}

	wg.Wait()
	return summaries
}

func (e *Engine) fullText(ctx context.Context, item Source) string {
	if e.Scraper == nil || item.URL == "" {
		return item.Snippet
	}
	text, err := e.Scraper.Scrape(ctx, item.URL)
	if err != nil || strings.TrimSpace(text) == "" {
		e.Logger.Warn("Failed to scrape, using summary", "url", item.URL, "error", err)
		return item.Snippet
	}
	return text
}

func (e *Engine) reflectPhase(ctx context.Context, st *state, summaries []string) (bool, string, error) {
	e.Logger.Info("Starting reflection phase")
	if st.iteration >= st.maxIterations {
		return false, "", nil
	}

	systemPrompt := `You are a research manager.
Review the gathered facts and decide if sufficient information has been gathered to answer the original research topic comprehensively.
If yes, output "STOP".
If no, output "CONTINUE" and a brief focus area for the next iteration.`

	input := fmt.Sprintf("Topic: %s\n\nRecent Findings:\n%s\n\nTotal Iterations: %d/%d",
		st.topic, strings.Join(summaries, "\n\n"), st.iteration, st.maxIterations)

	content, err := clients.GenerateWithRetry(ctx, e.LLM, e.Logger, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, input),
	}, clients.NotEmpty)
	if err != nil {
		return false, "", err
	}

	if strings.Contains(strings.ToUpper(content), "STOP") {
		return false, "", nil
	}
	focus := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(content), "CONTINUE"))
	return true, strings.TrimLeft(focus, ":- \n"), nil
}

func (e *Engine) generateReport(ctx context.Context, st *state) (string, error) {
	e.Logger.Info("Compiling final report", "facts", len(st.facts))

	prompt := fmt.Sprintf(`Write a comprehensive research report on "%s".
Use the following gathered facts and summaries:

%s

Format as Markdown with Introduction, Key Findings, Methodology/Discussion, and Conclusion.`,
		st.topic, strings.Join(st.facts, "\n\n"))

	report, err := clients.GenerateWithRetry(ctx, e.LLM, e.Logger, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, clients.NotEmpty)
	if err != nil {
		return "", err
	}

	report = strings.TrimSpace(report)
	if len(st.sources) > 0 {
		var sb strings.Builder
		sb.WriteString(report)
		sb.WriteString("\n\n## Sources\n")
		for _, s := range st.sources {
			if s.URL != "" {
				fmt.Fprintf(&sb, "- [%s](%s)\n", s.Title, s.URL)
			} else {
				fmt.Fprintf(&sb, "- %s\n", s.Title)
			}
		}
		report = strings.TrimRight(sb.String(), "\n")
	}

	e.Logger.Info("Final report generated", "length", len(report))
	return report, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
