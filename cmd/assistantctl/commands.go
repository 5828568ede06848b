package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/HanTheDev/onboard-assistant/internal/api"
	"github.com/HanTheDev/onboard-assistant/internal/assistant"
	"github.com/HanTheDev/onboard-assistant/internal/models"
)

// backend opens the assistant for one command invocation.
type backend interface {
	Open(ctx context.Context) (api.Assistant, func(context.Context) error, error)
	Migrate(ctx context.Context) error
}

const closeTimeout = 15 * time.Second

type cli struct {
	backend backend
	json    bool
	tenant  string
	limit   int
}

func newRootCmd(b backend) *cobra.Command {
	c := &cli{backend: b}

	root := &cobra.Command{
		Use:          "assistantctl",
		Short:        "Operate the onboarding assistant",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&c.json, "json", false, "output as JSON")

	root.AddCommand(
		c.processCmd("process-file", "Extract, chunk and index an uploaded file resource", func(a api.Assistant) func(context.Context, string) (*assistant.IngestResult, error) {
			return a.ProcessFile
		}),
		c.processCmd("process-url", "Fetch, chunk and index a URL resource", func(a api.Assistant) func(context.Context, string) (*assistant.IngestResult, error) {
			return a.ProcessURL
		}),
		c.askCmd(),
		c.popularCmd(),
		c.statsCmd(),
		c.clearCacheCmd(),
		c.migrateCmd(),
	)
	return root
}

func (c *cli) withAssistant(cmd *cobra.Command, fn func(context.Context, api.Assistant) error) error {
	ctx := cmd.Context()
	a, closeFn, err := c.backend.Open(ctx)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return errors.Join(runErr, closeFn(closeCtx))
}

func (c *cli) requireTenant(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&c.tenant, "tenant", "t", "", "company id")
	cmd.MarkFlagRequired("tenant")
}

func (c *cli) processCmd(use, short string, pick func(api.Assistant) func(context.Context, string) (*assistant.IngestResult, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <resource-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withAssistant(cmd, func(ctx context.Context, a api.Assistant) error {
				result, err := pick(a)(ctx, args[0])
				if err != nil {
					return fmt.Errorf("process %s: %w", args[0], err)
				}
				if c.json {
					return printJSON(cmd, result)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Processed %s for %s: %d chunks, %.0f%% of input removed as noise\n",
					result.ResourceID, result.TenantID, result.Chunks, result.CompressionRatio*100)
				return nil
			})
		},
	}
}

func (c *cli) askCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from a company's documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return c.withAssistant(cmd, func(ctx context.Context, a api.Assistant) error {
				answer, err := a.AnswerQuery(ctx, query, c.tenant)
				if err != nil {
					return err
				}
				if c.json {
					return printJSON(cmd, answer)
				}
				printAnswer(cmd, answer)
				return nil
			})
		},
	}
	c.requireTenant(cmd)
	return cmd
}

func printAnswer(cmd *cobra.Command, answer *models.Answer) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, answer.Content)
	if len(answer.Sources) == 0 {
		return
	}
	fmt.Fprintln(w)
	if answer.Cached {
		fmt.Fprintln(w, "Sources (cached):")
	} else {
		fmt.Fprintln(w, "Sources:")
	}
	for i, s := range answer.Sources {
		fmt.Fprintf(w, "  [%d] %s (%.2f)\n", i+1, s.Title, s.Score)
		if s.Location != "" {
			fmt.Fprintf(w, "      %s\n", s.Location)
		}
	}
}

func (c *cli) popularCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "popular",
		Short: "List a company's most asked questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withAssistant(cmd, func(ctx context.Context, a api.Assistant) error {
				questions, err := a.PopularQuestions(ctx, c.tenant, c.limit)
				if err != nil {
					return err
				}
				if c.json {
					return printJSON(cmd, questions)
				}
				printPopular(cmd, questions)
				return nil
			})
		},
	}
	c.requireTenant(cmd)
	cmd.Flags().IntVarP(&c.limit, "limit", "n", assistant.DefaultPopularLimit, "maximum number of questions")
	return cmd
}

func printPopular(cmd *cobra.Command, questions []models.PopularQuestion) {
	w := cmd.OutOrStdout()
	if len(questions) == 0 {
		fmt.Fprintln(w, "No questions asked yet.")
		return
	}
	for i, q := range questions {
		fmt.Fprintf(w, "  %2d. %s (%d)\n", i+1, q.Query, q.Count)
	}
}

func (c *cli) statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show a company's cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withAssistant(cmd, func(ctx context.Context, a api.Assistant) error {
				stats, err := a.CacheStats(ctx, c.tenant)
				if err != nil {
					return err
				}
				if c.json {
					return printJSON(cmd, stats)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Distinct questions: %d\n", stats.TotalQuestions)
				fmt.Fprintf(cmd.OutOrStdout(), "Cached answers:     %d\n", stats.CachedQuestions)
				if len(stats.PopularQuestions) > 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Most asked:")
					printPopular(cmd, stats.PopularQuestions)
				}
				return nil
			})
		},
	}
	c.requireTenant(cmd)
	return cmd
}

func (c *cli) clearCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear-cache",
		Short: "Drop a company's cached answers and question counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withAssistant(cmd, func(ctx context.Context, a api.Assistant) error {
				if err := a.ClearCache(ctx, c.tenant); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cache cleared for %s\n", c.tenant)
				return nil
			})
		},
	}
	c.requireTenant(cmd)
	return cmd
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.backend.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
