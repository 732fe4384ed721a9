// discubotctl is the admin CLI: it validates flow configuration against the
// live destination and seeds a local development setup.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"discubot/backend/internal/config"
	"discubot/backend/internal/logging"
	"discubot/backend/internal/notion"
	"discubot/backend/internal/repository"
	"discubot/backend/internal/router"
	"discubot/backend/pkg/models"
)

func main() {
	root := &cobra.Command{
		Use:          "discubotctl",
		Short:        "Admin tooling for the discubot intake service",
		SilenceUsage: true,
	}

	var configPath string
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config directory")

	root.AddCommand(checkCmd(&configPath))
	root.AddCommand(seedCmd(&configPath))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func connect(ctx context.Context, configPath string) (*config.Config, *repository.PostgresStore, *pgxpool.Pool, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	return cfg, repository.NewPostgresStore(pool), pool, nil
}

// checkCmd validates every flow: the output invariant (at least one output,
// exactly one default) and live connectivity to each destination database.
func checkCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate flow configuration and destination connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := logging.NewLogger()

			cfg, store, pool, err := connect(ctx, *configPath)
			if err != nil {
				return err
			}
			defer pool.Close()

			client := notion.NewClient(cfg.Notion.Token, cfg.Notion.Version, store, logger)
			taskRouter := router.New(logger)

			flows, err := store.ListFlows(ctx)
			if err != nil {
				return fmt.Errorf("listing flows: %w", err)
			}
			if len(flows) == 0 {
				fmt.Println("no flows configured")
				return nil
			}

			failures := 0
			for _, f := range flows {
				fmt.Printf("flow %s (%s)\n", f.Name, f.ID)

				outputs, err := store.ListOutputs(ctx, f.ID)
				if err != nil {
					return fmt.Errorf("listing outputs for flow %s: %w", f.ID, err)
				}
				if err := taskRouter.ValidateOutputs(outputs); err != nil {
					fmt.Printf("  INVALID: %v\n", err)
					failures++
					continue
				}

				for _, o := range outputs {
					info, err := client.CheckConnectivity(ctx, o.DatabaseID)
					if err != nil {
						fmt.Printf("  output %s (db %s): UNREACHABLE: %v\n", o.ID, o.DatabaseID, err)
						failures++
						continue
					}
					fmt.Printf("  output %s: %q %s\n", o.ID, info.Title, info.URL)
				}
			}

			if failures > 0 {
				return fmt.Errorf("%d check(s) failed", failures)
			}
			fmt.Println("all checks passed")
			return nil
		},
	}
}

// seedCmd creates a development flow with one input per source and a single
// default output. Re-running against a seeded database is a no-op.
func seedCmd(configPath *string) *cobra.Command {
	var teamID, databaseID string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed a local development flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := logging.NewLogger()

			cfg, store, pool, err := connect(ctx, *configPath)
			if err != nil {
				return err
			}
			defer pool.Close()

			existing, err := store.ListFlows(ctx)
			if err != nil {
				return fmt.Errorf("listing flows: %w", err)
			}
			for _, f := range existing {
				if f.Name == "Local Dev Flow" {
					logger.Info("Skipping seed, flow already exists", "id", f.ID)
					return nil
				}
			}

			flow := &models.Flow{
				ID:     uuid.New().String(),
				TeamID: teamID,
				Name:   "Local Dev Flow",
				Active: true,
			}
			if err := store.CreateFlow(ctx, flow); err != nil {
				return fmt.Errorf("creating flow: %w", err)
			}
			logger.Info("Seeded flow", "id", flow.ID)

			inputs := []*models.FlowInput{
				{
					SourceType: models.SourceTypeEmailComment,
					Metadata:   map[string]string{"recipient": "intake@dev.discubot.local"},
				},
				{
					SourceType:  models.SourceTypeNotion,
					Credentials: map[string]string{"notion_token": cfg.Notion.Token},
				},
				{
					SourceType: models.SourceTypeSlack,
				},
			}
			for _, in := range inputs {
				in.ID = uuid.New().String()
				in.FlowID = flow.ID
				in.TeamID = teamID
				in.Active = true
				if err := store.CreateFlowInput(ctx, in); err != nil {
					return fmt.Errorf("creating %s input: %w", in.SourceType, err)
				}
				logger.Info("Seeded input", "source_type", in.SourceType, "id", in.ID)
			}

			output := &models.FlowOutput{
				ID:          uuid.New().String(),
				FlowID:      flow.ID,
				Destination: models.DestinationTypeNotion,
				DatabaseID:  databaseID,
				IsDefault:   true,
				FieldMappings: map[string]models.FieldMapping{
					"priority": {Property: "Priority", Type: "select"},
					"type":     {Property: "Type", Type: "select"},
				},
			}
			if err := store.CreateFlowOutput(ctx, output); err != nil {
				return fmt.Errorf("creating output: %w", err)
			}
			logger.Info("Seeded output", "id", output.ID, "database_id", databaseID)

			logger.Info("Seeding complete!")
			return nil
		},
	}

	cmd.Flags().StringVar(&teamID, "team", "dev-team", "team id for the seeded flow")
	cmd.Flags().StringVar(&databaseID, "database", "", "Notion database id for the default output")
	_ = cmd.MarkFlagRequired("database")
	return cmd
}
