package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mikeboe/agent-relay/pkg/a2a"
	"github.com/mikeboe/agent-relay/pkg/blog"
	"github.com/mikeboe/agent-relay/pkg/clients"
	"github.com/mikeboe/agent-relay/pkg/config"
	"github.com/mikeboe/agent-relay/pkg/database"
	"github.com/mikeboe/agent-relay/pkg/embeddings"
	"github.com/mikeboe/agent-relay/pkg/research"
	"github.com/mikeboe/agent-relay/pkg/research/tools"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:   "agent-server",
		Short: "Hosts the research and blog agents over A2A",
	}
	rootCmd.AddCommand(researchCmd(cfg), blogCmd(cfg))

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func researchCmd(cfg *config.Config) *cobra.Command {
	var port, backend string
	cmd := &cobra.Command{
		Use:   "research",
		Short: "Serve the DeepSearch research agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			httpClient := a2a.NewHTTPClient(cfg.RequestTimeout)
			arxiv := tools.NewArxivClient(httpClient)

			index, closeIndex, err := openIndex(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeIndex()

			var (
				researcher research.Researcher
				framework  string
			)
			switch backend {
			case config.BackendADK:
				toolset := research.NewToolset(arxiv, index, cfg.ArxivMaxResults)
				r, err := research.NewADKResearcher(ctx, cfg.GoogleApiKey, cfg.ReasoningModel, toolset)
				if err != nil {
					return err
				}
				researcher, framework = r, "Google ADK"
			case config.BackendEngine:
				llm, err := clients.GoogleAi(ctx, cfg.GoogleApiKey, clients.ModelType(cfg.FastModel))
				if err != nil {
					return err
				}
				engine := research.NewEngine(llm, arxiv)
				engine.Config.MaxIterations = cfg.MaxIterations
				engine.Index = index
				if cfg.MistralApiKey != "" {
					engine.Scraper = tools.NewPDFScraper(cfg.MistralApiKey, httpClient)
				}
				engine.OnStateUpdate = func(p research.Progress) {
					slog.Info("Research progress", "iteration", p.Iteration, "sources", p.Sources, "facts", p.Facts)
				}
				researcher, framework = engine, "LangChainGo"
			default:
				return fmt.Errorf("unknown research backend %q (want %q or %q)", backend, config.BackendADK, config.BackendEngine)
			}

			slog.Info("Research backend ready", "backend", backend, "indexed", index != nil)
			return serve(port, research.NewAgent(researcher, framework))
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", cfg.ResearchPort, "Port to listen on")
	cmd.Flags().StringVar(&backend, "backend", cfg.ResearchBackend, "Research backend: adk or engine")
	return cmd
}

func blogCmd(cfg *config.Config) *cobra.Command {
	var port, outputDir string
	cmd := &cobra.Command{
		Use:   "blog",
		Short: "Serve the blog post generator agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			llm, err := clients.GoogleAi(cmd.Context(), cfg.GoogleApiKey, clients.ModelType(cfg.FastModel))
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			return serve(port, blog.NewAgent(blog.NewPipeline(llm, outputDir)))
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", cfg.BlogPort, "Port to listen on")
	cmd.Flags().StringVarP(&outputDir, "output", "o", cfg.OutputDir, "Directory blog posts are written to")
	return cmd
}

// openIndex connects the paper index when DATABASE_URL is set. Without a
// database the research agent runs on arXiv abstracts alone.
func openIndex(ctx context.Context, cfg *config.Config) (*research.SourceIndex, func(), error) {
	if cfg.DatabaseURL == "" {
		return nil, func() {}, nil
	}

	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	embedder, err := embeddings.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	index, err := research.OpenSourceIndex(ctx, db, embedder, cfg.CollectionName, cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return index, db.Close, nil
}

func serve(port string, agent a2a.Agent) error {
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
	}))

	a2a.NewServer(agent).RegisterRoutes(r)

	card := agent.Card()
	slog.Info("Agent server starting", "agent", card.Name, "version", card.Version, "port", port)
	return r.Run(":" + port)
}
