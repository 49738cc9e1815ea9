package research

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mikeboe/agent-relay/pkg/database"
	"github.com/mikeboe/agent-relay/pkg/embeddings"
	"github.com/mikeboe/agent-relay/pkg/splitter"
	"github.com/mikeboe/agent-relay/pkg/vectorstore"
)

// Embedder turns text into vectors.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

type documentStore interface {
	AddDocuments(ctx context.Context, docs []vectorstore.Document) error
	HasSource(ctx context.Context, source string) (bool, error)
	SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, sourceFilter string) ([]vectorstore.SimilaritySearchResult, error)
	GetContentBySource(ctx context.Context, source string) ([]vectorstore.Document, error)
	GetContentByMetadata(ctx context.Context, filter map[string]any) ([]vectorstore.Document, error)
}

// SourceIndex chunks, embeds and stores research sources so agents can
// search them later.
type SourceIndex struct {
	store    documentStore
	Embedder Embedder
	Splitter *splitter.TextSplitter
	Logger   *slog.Logger
}

// OpenSourceIndex prepares the collection table in db and returns an index
// over it.
func OpenSourceIndex(ctx context.Context, db *database.PostgresDB, embedder Embedder, collection string, chunkSize, chunkOverlap int) (*SourceIndex, error) {
	store, err := vectorstore.NewPGVectorStore(db.Pool, collection)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureVectorExtension(ctx); err != nil {
		return nil, err
	}
	if err := db.CreateEmbeddingsTable(ctx, collection, embeddings.Dimension); err != nil {
		return nil, err
	}
	return newSourceIndex(store, embedder, splitter.NewRecursiveCharacterTextSplitter(chunkSize, chunkOverlap)), nil
}

func newSourceIndex(store documentStore, embedder Embedder, ts *splitter.TextSplitter) *SourceIndex {
	return &SourceIndex{store: store, Embedder: embedder, Splitter: ts, Logger: slog.Default()}
}

// Index stores text for src and returns the number of chunks written. A
// source that is already stored is skipped.
func (x *SourceIndex) Index(ctx context.Context, src Source, text string) (int, error) {
	exists, err := x.store.HasSource(ctx, src.key())
	if err != nil {
		return 0, err
	}
	if exists {
		x.Logger.Debug("Source already indexed", "source", src.key())
		return 0, nil
	}

	chunks, err := x.Splitter.SplitText(text)
	if err != nil {
		return 0, fmt.Errorf("failed to split text: %w", err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	vecs, err := x.Embedder.EmbedTexts(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	docs := make([]vectorstore.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = vectorstore.Document{
			Content: chunk,
			Metadata: map[string]any{
				"source": src.key(),
				"title":  src.Title,
				"chunk":  i,
			},
			Embedding: vecs[i],
		}
	}
	if err := x.store.AddDocuments(ctx, docs); err != nil {
		return 0, err
	}

	x.Logger.Info("Indexed source", "title", src.Title, "chunks", len(docs))
	return len(docs), nil
}

// Search returns the topK chunks most similar to query, optionally limited
// to one source.
func (x *SourceIndex) Search(ctx context.Context, query string, topK int, source string) ([]vectorstore.SimilaritySearchResult, error) {
	vec, err := x.Embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}
	return x.store.SimilaritySearch(ctx, vec, topK, source)
}

// Read returns every stored chunk of source in insertion order.
func (x *SourceIndex) Read(ctx context.Context, source string) ([]vectorstore.Document, error) {
	return x.store.GetContentBySource(ctx, source)
}

// Find returns chunks whose metadata matches filter.
func (x *SourceIndex) Find(ctx context.Context, filter map[string]any) ([]vectorstore.Document, error) {
	return x.store.GetContentByMetadata(ctx, filter)
}
