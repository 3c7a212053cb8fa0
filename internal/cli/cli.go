package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bobarin/reelsmith/internal/app"
	"github.com/bobarin/reelsmith/internal/config"
	"github.com/bobarin/reelsmith/internal/content"
	"github.com/bobarin/reelsmith/internal/models"
	"github.com/bobarin/reelsmith/internal/pipeline"
)

// BuildCLI returns the reelctl root command. Every command runs offline:
// nothing is generated and no provider is called.
func BuildCLI() *cobra.Command {
	var tablePath string

	rootCmd := &cobra.Command{
		Use:           "reelctl",
		Short:         "Inspect how prompts are classified, planned and routed",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}
	rootCmd.PersistentFlags().StringVar(&tablePath, "table", "", "suitability table YAML (default: built-in table)")

	rootCmd.AddCommand(buildClassifyCommand())
	rootCmd.AddCommand(buildPlanCommand())
	rootCmd.AddCommand(buildRankCommand(&tablePath))
	rootCmd.AddCommand(buildTableCommand(&tablePath))

	return rootCmd
}

func buildClassifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <prompt>",
		Short: "Show the content category, scores and hints for a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := content.Sanitize(strings.Join(args, " "))
			signals := content.Classify(prompt)
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"prompt":     prompt,
				"signals":    signals,
				"parameters": content.SuggestParameters(signals.Category),
			})
		},
	}
}

func buildPlanCommand() *cobra.Command {
	var duration float64
	var category string

	cmd := &cobra.Command{
		Use:   "plan <prompt>",
		Short: "Print the hybrid segment plan for a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := content.Sanitize(strings.Join(args, " "))
			cat := content.Classify(prompt).Category
			if category != "" {
				cat = content.ParseCategory(category)
			}
			return writeJSON(cmd.OutOrStdout(), pipeline.NewPlanner().Plan(prompt, duration, cat))
		},
	}
	cmd.Flags().Float64VarP(&duration, "duration", "d", 10, "target duration in seconds")
	cmd.Flags().StringVar(&category, "category", "", "force a category (testimonial, commercial, cinematic, stock, generic)")
	return cmd
}

func buildRankCommand(tablePath *string) *cobra.Command {
	var duration float64
	var capability, override string

	cmd := &cobra.Command{
		Use:   "rank <prompt>",
		Short: "Print the provider order for a prompt using the credentials in the environment",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := loadTable(*tablePath)
			if err != nil {
				return err
			}

			cfg := config.FromEnv()
			registry := pipeline.NewRegistry()
			if err := app.RegisterProviders(registry, cfg); err != nil {
				return err
			}
			// Ranking never invokes the hybrid provider, so it needs no assembler.
			if err := app.RegisterHybrid(registry, cfg, pipeline.NewHybridProvider(pipeline.NewPlanner(), nil)); err != nil {
				return err
			}

			prompt := content.Sanitize(strings.Join(args, " "))
			signals := content.Classify(prompt)
			rank := pipeline.NewSelector(registry, table).Rank(models.CapabilityRequest{
				Capability:  models.Capability(capability),
				Prompt:      prompt,
				DurationSec: duration,
				Override:    models.ProviderID(strings.ToLower(override)),
			}, signals)

			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"category": signals.Category,
				"rank":     rank,
			})
		},
	}
	cmd.Flags().Float64VarP(&duration, "duration", "d", 10, "target duration in seconds")
	cmd.Flags().StringVar(&capability, "capability", string(models.CapabilityVideoFromText), "capability to rank")
	cmd.Flags().StringVar(&override, "override", "", "explicit provider override")
	return cmd
}

func buildTableCommand(tablePath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "table",
		Short: "Print the effective suitability table as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := loadTable(*tablePath)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(table)
		},
	}
}

func loadTable(path string) (pipeline.SuitabilityTable, error) {
	if path == "" {
		return pipeline.DefaultSuitabilityTable(), nil
	}
	return pipeline.LoadSuitabilityTable(path)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
