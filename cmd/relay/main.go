package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mikeboe/agent-relay/pkg/a2a"
	"github.com/mikeboe/agent-relay/pkg/config"
	"github.com/mikeboe/agent-relay/pkg/database"
	"github.com/mikeboe/agent-relay/pkg/relay"
	"github.com/mikeboe/agent-relay/pkg/runs"
)

const defaultTopic = "The future of sustainable energy technologies"

const sampleResearch = `Recent research on renewable energy shows rapid cost declines in solar photovoltaics and onshore wind.
Perovskite-silicon tandem cells have passed 33% efficiency in the lab.
Grid-scale lithium-ion storage deployments doubled year over year, while sodium-ion and flow batteries are emerging for long-duration storage.
Open questions remain around recycling, supply chains for critical minerals, and grid interconnection queues.`

func main() {
	console := slog.NewTextHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(console))

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}
	cfg := config.Load()

	var (
		topic         string
		researchURL   string
		blogURL       string
		skipHealth    bool
		noPersistence bool
	)

	rootCmd := &cobra.Command{
		Use:   "relay",
		Short: "Relays a topic through the research agent and then the blog agent",
		Long: `relay sends a topic to the research agent, cleans the research it streams back,
and hands it to the blog agent, which writes a markdown post to disk.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("topic") {
				topic = promptTopic(cmd.InOrStdin(), cmd.OutOrStdout())
			}

			w := relay.NewWorkflow(newClient(cfg, researchURL), newClient(cfg, blogURL))
			w.SkipHealthCheck = skipHealth

			ctx := cmd.Context()
			var out *relay.Outcome
			var err error
			if cfg.DatabaseURL != "" && !noPersistence {
				out, err = runPersisted(ctx, cfg, w, console, topic)
			} else {
				out, err = w.Run(ctx, topic)
			}

			printOutcome(cmd.OutOrStdout(), out)
			return err
		},
	}
	rootCmd.PersistentFlags().StringVar(&researchURL, "research-url", cfg.ResearchAgentURL, "Research agent base URL")
	rootCmd.PersistentFlags().StringVar(&blogURL, "blog-url", cfg.BlogAgentURL, "Blog agent base URL")
	rootCmd.Flags().StringVarP(&topic, "topic", "t", "", "Topic to research (prompted for when omitted)")
	rootCmd.Flags().BoolVar(&skipHealth, "skip-health", false, "Do not probe the agents before starting")
	rootCmd.Flags().BoolVar(&noPersistence, "no-persist", false, "Do not record the run even when DATABASE_URL is set")

	rootCmd.AddCommand(
		invokeCmd(cfg, "research [topic]", "Send a topic to the research agent only", &researchURL, defaultTopic),
		invokeCmd(cfg, "blog [research text]", "Send research text to the blog agent only", &blogURL, sampleResearch),
		discoverCmd(cfg),
		runsCmd(cfg),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newClient(cfg *config.Config, url string) *a2a.Client {
	return a2a.NewClient(url, a2a.NewHTTPClient(cfg.RequestTimeout))
}

func promptTopic(in io.Reader, out io.Writer) string {
	fmt.Fprintf(out, "Enter a topic for research and blog generation (default: %s): ", defaultTopic)
	input, _ := bufio.NewReader(in).ReadString('\n')
	if t := strings.TrimSpace(input); t != "" {
		return t
	}
	fmt.Fprintf(out, "No topic entered. Using default: %s\n", defaultTopic)
	return defaultTopic
}

// runPersisted records the run, its transitions and its logs in the
// database.
func runPersisted(ctx context.Context, cfg *config.Config, w *relay.Workflow, console slog.Handler, topic string) (*relay.Outcome, error) {
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	if err := db.InitSchema(ctx); err != nil {
		return nil, err
	}

	store := runs.NewStore(db.Pool)
	id, err := store.Create(ctx, strings.TrimSpace(topic))
	if err != nil {
		return nil, err
	}

	logger := slog.New(runs.NewLogHandler(db.Pool, id, console, slog.LevelInfo)).With("run_id", id)
	w.Logger = logger
	w.OnTransition = func(t relay.Transition) {
		if err := store.Record(ctx, id, t); err != nil {
			logger.Error("Failed to record transition", "error", err)
		}
	}

	out, runErr := w.Run(ctx, topic)
	if err := store.Finish(context.WithoutCancel(ctx), id, out); err != nil {
		logger.Error("Failed to save run", "error", err)
	}
	return out, runErr
}

func printOutcome(out io.Writer, o *relay.Outcome) {
	if o == nil {
		return
	}
	fmt.Fprintln(out, strings.Repeat("=", 60))
	if o.State != relay.Done {
		fmt.Fprintf(out, "Workflow failed: %s\n", o.Reason())
		return
	}
	fmt.Fprintf(out, "Research preview:\n%s\n\n", relay.Preview(o.Research))
	fmt.Fprintln(out, o.Summary.String())
	fmt.Fprintln(out, strings.Repeat("=", 60))
}

func invokeCmd(cfg *config.Config, use, short string, url *string, fallback string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if strings.TrimSpace(text) == "" {
				text = fallback
			}
			res, err := newClient(cfg, *url).Invoke(cmd.Context(), text)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			return nil
		},
	}
}

func discoverCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "discover <url>",
		Short: "Print an agent's card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			card, err := newClient(cfg, args[0]).Discover(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), card)
		},
	}
}

func runsCmd(cfg *config.Config) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded workflow runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), cfg, func(s *runs.Store) error {
				list, err := s.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				for _, r := range list {
					line := fmt.Sprintf("%s  %-10s  %s  %s", r.ID, r.State, r.CreatedAt.Format("2006-01-02 15:04"), r.Topic)
					if r.Artifact != nil {
						line += "  -> " + *r.Artifact
					}
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")

	cmd.AddCommand(&cobra.Command{
		Use:   "logs <run-id>",
		Short: "Print the logs of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id: %w", err)
			}
			return withStore(cmd.Context(), cfg, func(s *runs.Store) error {
				logs, err := s.Logs(cmd.Context(), id)
				if err != nil {
					return err
				}
				for _, l := range logs {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %-5s %s %s\n", l.Timestamp.Format("15:04:05"), l.Level, l.Message, l.Metadata)
				}
				return nil
			})
		},
	})
	return cmd
}

func withStore(ctx context.Context, cfg *config.Config, fn func(*runs.Store) error) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(runs.NewStore(db.Pool))
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
