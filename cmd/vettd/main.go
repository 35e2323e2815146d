package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/g0da-s/vettd/pkg/agents"
	"github.com/g0da-s/vettd/pkg/clients"
	"github.com/g0da-s/vettd/pkg/config"
	"github.com/g0da-s/vettd/pkg/llm"
	"github.com/g0da-s/vettd/pkg/pipeline"
	"github.com/g0da-s/vettd/pkg/retry"
	"github.com/g0da-s/vettd/pkg/search"
)

var idea string

func main() {
	// Setup structured logging
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))

	// Load .env file
	if err := godotenv.Load(); err != nil {
		// It's okay if .env doesn't exist, as long as env vars are set
	}

	rootCmd := &cobra.Command{
		Use:   "vettd",
		Short: "Validate a startup idea from the terminal",
		Long:  `vettd researches a startup idea with four concurrent agents (pain, competitors, market, prior failures) and synthesizes a BUILD/SKIP/MAYBE verdict.`,
		Run: func(cmd *cobra.Command, args []string) {
			if !cmd.Flags().Changed("idea") {
				// Interactive Mode
				reader := bufio.NewReader(os.Stdin)
				fmt.Print("Describe the idea: ")
				input, _ := reader.ReadString('\n')
				idea = strings.TrimSpace(input)
			}
			if idea == "" {
				slog.Error("Idea cannot be empty")
				os.Exit(1)
			}

			if err := validate(context.Background(), idea); err != nil {
				slog.Error("Validation failed", "error", err)
				os.Exit(1)
			}
		},
	}

	rootCmd.Flags().StringVarP(&idea, "idea", "i", "", "The startup idea to validate")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func validate(ctx context.Context, idea string) error {
	cfg := config.Load()
	logger := slog.Default()

	gemini, err := clients.NewGemini(ctx, cfg.GoogleApiKey, cfg.FastModel, cfg.ReasoningModel)
	if err != nil {
		return err
	}
	reasoning, reasoningName := gemini.Model(clients.ReasoningTier)
	fast, fastName := gemini.Model(clients.FastTier)

	// The CLI runs self-contained: in-memory run store and search cache.
	gateway := search.NewGateway(search.NewTavily(cfg.TavilyApiKey), search.NewMemoryCache(),
		cfg.SearchCacheTTL, cfg.SearchConcurrency, logger)

	policy := retry.DefaultPolicy()
	engine := &llm.Engine{Model: reasoning, ModelName: reasoningName, Retry: policy, Logger: logger}
	extractor := &llm.Generator{Model: reasoning, ModelName: reasoningName, Retry: policy, Logger: logger}
	planner := &agents.QueryPlanner{Gen: &llm.Generator{Model: fast, ModelName: fastName, Retry: policy, Logger: logger}}
	structured := &llm.StructuredClient{Client: gemini.GenAi, Model: reasoningName, Retry: policy, Logger: logger}

	repo := pipeline.NewMemoryRepository()
	broker := pipeline.NewBroker(logger)
	orch := pipeline.NewOrchestrator(repo, broker, logger, cfg.AgentTimeout)
	orch.Pain = &agents.PainAgent{
		Engine: engine, Searcher: gateway, Logger: logger,
		MaxIterations: cfg.MaxToolIterations, MinToolUses: cfg.MinToolUses, RecommendedToolUses: cfg.RecommendedToolUses,
	}
	orch.Competitor = &agents.CompetitorAgent{
		Engine: engine, Searcher: gateway, Logger: logger,
		MaxIterations: cfg.MaxToolIterations, MinToolUses: cfg.MinToolUses, RecommendedToolUses: cfg.RecommendedToolUses,
	}
	orch.Market = agents.NewMarketAgent(planner, extractor, gateway, logger, cfg.MaxEvidenceRetries)
	orch.Graveyard = agents.NewGraveyardAgent(planner, extractor, gateway, logger, cfg.MaxEvidenceRetries)
	orch.Synthesis = &agents.SynthesisAgent{Client: structured, Logger: logger}

	now := time.Now()
	run := &pipeline.ValidationRun{
		ID:        uuid.New(),
		Idea:      idea,
		Status:    pipeline.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Create(ctx, run); err != nil {
		return err
	}

	slog.Info("Starting validation", "idea", idea)
	orch.Run(ctx, run)

	final, err := repo.Get(ctx, run.ID)
	if err != nil {
		return err
	}
	if final.Status != pipeline.StatusCompleted || final.Synthesis == nil {
		return fmt.Errorf("validation did not complete: %s", final.Error)
	}
	printVerdict(final)
	return nil
}

func printVerdict(run *pipeline.ValidationRun) {
	v := run.Synthesis
	fmt.Printf("\n=== Verdict: %s (confidence %.2f) ===\n\n", v.Verdict, v.Confidence)
	fmt.Println(v.Reasoning)

	if len(v.KeyRisks) > 0 {
		fmt.Println("\nKey risks:")
		for _, r := range v.KeyRisks {
			fmt.Printf("  - %s\n", r)
		}
	}
	if len(v.NextSteps) > 0 {
		fmt.Println("\nNext steps:")
		for _, s := range v.NextSteps {
			fmt.Printf("  - %s\n", s)
		}
	}
	fmt.Printf("\nPayment likelihood: %s | Reachability: %s | Competitor gap: %s\n",
		v.PaymentLikelihood, v.ReachabilityTier, v.GapSize)
	if run.Pain != nil && run.Pain.LowEvidence {
		fmt.Println("Note: pain evidence was thin; treat the verdict with caution.")
	}
}
