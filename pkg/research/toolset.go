package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"github.com/mikeboe/agent-relay/pkg/research/tools"
	"github.com/mikeboe/agent-relay/pkg/vectorstore"
)

const defaultTopK = 5

var errNoIndex = errors.New("source index is not configured")

// Toolset exposes arXiv search and, when Index is set, the source index to
// an ADK agent.
type Toolset struct {
	Arxiv      Searcher
	Index      *SourceIndex
	MaxResults int
	Logger     *slog.Logger
}

// NewToolset returns the research tools. The source tools are only offered
// when index is not nil.
func NewToolset(arxiv Searcher, index *SourceIndex, maxResults int) *Toolset {
	return &Toolset{Arxiv: arxiv, Index: index, MaxResults: maxResults, Logger: slog.Default()}
}

func (t *Toolset) Name() string {
	return "research_tools"
}

func (t *Toolset) Tools(ctx agent.ReadonlyContext) ([]tool.Tool, error) {
	arxivTool, err := functiontool.New[SearchArxivArgs, SearchArxivResp](
		functiontool.Config{
			Name:        "search_arxiv",
			Description: "Search arXiv for papers on a topic. Returns titles, summaries, publication dates and PDF links.",
		},
		t.searchArxivTool,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search_arxiv tool: %w", err)
	}
	if t.Index == nil {
		return []tool.Tool{arxivTool}, nil
	}

	searchTool, err := functiontool.New[SearchSourcesArgs, SearchSourcesResp](
		functiontool.Config{
			Name:        "search_sources",
			Description: "Semantic search over the text of papers found earlier.",
		},
		t.searchSourcesTool,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search_sources tool: %w", err)
	}

	readTool, err := functiontool.New[ReadSourceArgs, ReadSourceResp](
		functiontool.Config{
			Name:        "read_source",
			Description: "Read all stored text of one source by its URL.",
		},
		t.readSourceTool,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create read_source tool: %w", err)
	}

	findTool, err := functiontool.New[FindSourcesArgs, FindSourcesResp](
		functiontool.Config{
			Name:        "find_sources",
			Description: "Find stored text using logical filters on metadata such as title or source.",
		},
		t.findSourcesTool,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create find_sources tool: %w", err)
	}

	return []tool.Tool{arxivTool, searchTool, readTool, findTool}, nil
}

type SearchArxivArgs struct {
	Query      string `json:"query" description:"The arXiv search query"`
	MaxResults int    `json:"maxResults,omitempty" description:"Number of papers to return (default 5)"`
}

type SearchArxivResp struct {
	Results string `json:"results"`
}

func (t *Toolset) searchArxivTool(ctx tool.Context, args SearchArxivArgs) (SearchArxivResp, error) {
	return t.SearchArxiv(ctx, args)
}

// SearchArxiv searches arXiv and indexes the summaries it finds.
func (t *Toolset) SearchArxiv(ctx context.Context, args SearchArxivArgs) (SearchArxivResp, error) {
	if args.MaxResults <= 0 {
		args.MaxResults = t.MaxResults
	}
	papers, err := t.Arxiv.Search(ctx, args.Query, args.MaxResults)
	if err != nil {
		return SearchArxivResp{}, fmt.Errorf("arxiv search failed: %w", err)
	}

	if t.Index != nil {
		for _, p := range papers {
			src := sourceFromPaper(p)
			if _, err := t.Index.Index(ctx, src, p.Title+"\n\n"+p.Summary); err != nil {
				t.Logger.Warn("Failed to index paper", "title", p.Title, "error", err)
			}
		}
	}

	return SearchArxivResp{Results: tools.FormatPapers(args.Query, papers)}, nil
}

type SearchSourcesArgs struct {
	Query  string `json:"query" description:"The search query"`
	TopK   int    `json:"topK,omitempty" description:"Number of results to return (default 5)"`
	Source string `json:"source,omitempty" description:"Optional source URL filter"`
}

type SearchSourcesResp struct {
	Results string `json:"results"`
}

func (t *Toolset) searchSourcesTool(ctx tool.Context, args SearchSourcesArgs) (SearchSourcesResp, error) {
	return t.SearchSources(ctx, args)
}

func (t *Toolset) SearchSources(ctx context.Context, args SearchSourcesArgs) (SearchSourcesResp, error) {
	if t.Index == nil {
		return SearchSourcesResp{}, errNoIndex
	}
	if args.TopK <= 0 {
		args.TopK = defaultTopK
	}

	t.Logger.Info("Search sources", "query", args.Query, "topK", args.TopK, "source", args.Source)
	results, err := t.Index.Search(ctx, args.Query, args.TopK, args.Source)
	if err != nil {
		return SearchSourcesResp{}, fmt.Errorf("failed to search: %w", err)
	}

	formatted := make([]string, 0, len(results))
	for _, r := range results {
		formatted = append(formatted, formatDocument(r.Document, true))
	}
	return SearchSourcesResp{Results: strings.Join(formatted, "\n\n")}, nil
}

type ReadSourceArgs struct {
	Source string `json:"source" description:"The source URL to read"`
}

type ReadSourceResp struct {
	Content string `json:"content"`
}

func (t *Toolset) readSourceTool(ctx tool.Context, args ReadSourceArgs) (ReadSourceResp, error) {
	return t.ReadSource(ctx, args)
}

func (t *Toolset) ReadSource(ctx context.Context, args ReadSourceArgs) (ReadSourceResp, error) {
	if t.Index == nil {
		return ReadSourceResp{}, errNoIndex
	}
	docs, err := t.Index.Read(ctx, args.Source)
	if err != nil {
		return ReadSourceResp{}, fmt.Errorf("failed to read source: %w", err)
	}

	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, d.Content)
	}
	return ReadSourceResp{Content: strings.Join(parts, "\n\n")}, nil
}

type FindSourcesArgs struct {
	Filter map[string]any `json:"filter" description:"JSON filter object with logical operators ($and, $or, $not)"`
}

type FindSourcesResp struct {
	Content string `json:"content"`
}

func (t *Toolset) findSourcesTool(ctx tool.Context, args FindSourcesArgs) (FindSourcesResp, error) {
	return t.FindSources(ctx, args)
}

func (t *Toolset) FindSources(ctx context.Context, args FindSourcesArgs) (FindSourcesResp, error) {
	if t.Index == nil {
		return FindSourcesResp{}, errNoIndex
	}
	docs, err := t.Index.Find(ctx, args.Filter)
	if err != nil {
		return FindSourcesResp{}, fmt.Errorf("failed to find sources: %w", err)
	}

	formatted := make([]string, 0, len(docs))
	for _, d := range docs {
		formatted = append(formatted, formatDocument(d, false))
	}
	return FindSourcesResp{Content: strings.Join(formatted, "\n\n")}, nil
}

// formatDocument renders a chunk with its metadata in sorted key order.
func formatDocument(d vectorstore.Document, withSource bool) string {
	var sb strings.Builder
	if withSource {
		fmt.Fprintf(&sb, "[Source]: %s\n", d.Source())
	}
	fmt.Fprintf(&sb, "[Content]: %s", d.Content)

	keys := make([]string, 0, len(d.Metadata))
	for k := range d.Metadata {
		if k != "source" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "\n[%s]: %v", k, d.Metadata[k])
	}
	return sb.String()
}
