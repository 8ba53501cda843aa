package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OldStager01/farm-bi/internal/auth"
	"github.com/OldStager01/farm-bi/internal/closing"
	"github.com/OldStager01/farm-bi/internal/logger"
	"github.com/OldStager01/farm-bi/internal/simulator"
	"github.com/OldStager01/farm-bi/pkg/database"
	"github.com/OldStager01/farm-bi/pkg/models"
	"github.com/OldStager01/farm-bi/pkg/validation"
)

const defaultActor = "farmbi-cli"

// withRuntime builds the component graph for a one-shot command.
func (a *app) withRuntime(ctx context.Context, fn func(context.Context, *runtime) error) error {
	rt, err := build(a.cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Database.MigrationTimeout)
			defer cancel()

			db, err := database.New(a.cfg.Database.ToDBConfig())
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			logger.Info("Running database migrations")
			if err := database.NewMigrator(db).Run(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			st, err := db.Status(ctx, database.BITables...)
			if err != nil {
				return err
			}
			logger.WithFields(map[string]interface{}{
				"driver":  st.Driver,
				"version": st.Version,
			}).Info("Migrations completed successfully")
			return nil
		},
	}
}

func newCloseCmd(a *app) *cobra.Command {
	var actor, notes string

	cmd := &cobra.Command{
		Use:   "close YYYY-MM",
		Short: "Run the monthly close of a period and print its report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			period, err := models.ParsePeriod(args[0])
			if err != nil {
				return err
			}
			if err := validation.ValidateActor(actor); err != nil {
				return err
			}
			clean, err := validation.CleanNotes(notes)
			if err != nil {
				return err
			}

			return a.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				report, err := rt.closer.CloseMonth(ctx, closing.CloseRequest{
					Period: period,
					Actor:  actor,
					Notes:  clean,
				})
				if report != nil {
					if perr := a.printJSON(report); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", defaultActor, "operator recorded on the close")
	cmd.Flags().StringVar(&notes, "notes", "", "free-text notes stored with the summary")
	return cmd
}

func newSnapshotCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Read or regenerate period snapshots",
	}

	get := &cobra.Command{
		Use:   "get YYYY-MM",
		Short: "Print the snapshot of a closed period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			period, err := models.ParsePeriod(args[0])
			if err != nil {
				return err
			}
			return a.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				snap, err := rt.snapshots.GetSnapshot(ctx, period)
				if err != nil {
					return err
				}
				return a.printJSON(snap)
			})
		},
	}

	var actor string
	regenerate := &cobra.Command{
		Use:   "regenerate YYYY-MM",
		Short: "Write a new snapshot version and rerun the post-close steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			period, err := models.ParsePeriod(args[0])
			if err != nil {
				return err
			}
			if err := validation.ValidateActor(actor); err != nil {
				return err
			}
			return a.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				report, err := rt.closer.RegenerateSnapshot(ctx, period, actor)
				if report != nil {
					if perr := a.printJSON(report); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
	regenerate.Flags().StringVar(&actor, "actor", defaultActor, "operator recorded on the snapshot")

	cmd.AddCommand(get, regenerate)
	return cmd
}

func newEvaluateCmd(a *app) *cobra.Command {
	var ref string
	var persist bool

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run every alert rule at a reference date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			at := time.Now()
			if ref != "" {
				parsed, err := time.Parse("2006-01-02", ref)
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
				at = parsed
			}

			return a.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				alerts, evalErr := rt.alerts.EvaluateAll(ctx, at)
				if evalErr != nil {
					logger.Warnf("Some rules failed: %v", evalErr)
				}
				if persist {
					inserted, err := rt.alerts.Persist(ctx, alerts)
					if err != nil {
						return err
					}
					logger.WithField("inserted", inserted).Info("Alerts persisted")
				}
				return a.printJSON(alerts)
			})
		},
	}
	cmd.Flags().StringVar(&ref, "date", "", "reference date (YYYY-MM-DD, default today)")
	cmd.Flags().BoolVar(&persist, "persist", false, "store the alerts that survive deduplication")
	return cmd
}

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the derived-result cache",
	}

	invalidate := &cobra.Command{
		Use:   "invalidate PATTERN",
		Short: "Remove entries whose key matches a * / ? pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				n, err := rt.cache.InvalidatePattern(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "removed %d entries\n", n)
				return nil
			})
		},
	}

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				n, err := rt.cache.Sweep(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "removed %d expired entries\n", n)
				return nil
			})
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print entry and hit counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				s, err := rt.cache.Stats(ctx)
				if err != nil {
					return err
				}
				return a.printJSON(s)
			})
		},
	}

	cmd.AddCommand(invalidate, sweep, stats)
	return cmd
}

func newTokenCmd(a *app) *cobra.Command {
	var actor, role string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API token for an operator or viewer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validation.ValidateActor(actor); err != nil {
				return err
			}
			svc := auth.NewService(auth.Config{
				Secret:   a.cfg.API.JWTSecret,
				Duration: a.cfg.API.JWTDuration,
				Issuer:   a.cfg.API.JWTIssuer,
			})
			token, err := svc.GenerateToken(actor, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "name recorded on closes made with this token")
	cmd.Flags().StringVar(&role, "role", auth.RoleOperator, "operator or viewer")
	cmd.MarkFlagRequired("actor")
	return cmd
}

func newSeedCmd(a *app) *cobra.Command {
	var herd int
	var output, spend string
	var seed int64

	cmd := &cobra.Command{
		Use:   "seed FROM TO",
		Short: "Fill the operational tables with simulated months (YYYY-MM)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := models.ParsePeriod(args[0])
			if err != nil {
				return err
			}
			to, err := models.ParsePeriod(args[1])
			if err != nil {
				return err
			}
			return a.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				sim := simulator.New(simulator.Config{
					Herd:   herd,
					Output: simulator.ParsePattern(output, seed),
					Spend:  simulator.ParsePattern(spend, seed+1),
				}, rt.db)
				stats, err := sim.Seed(ctx, from, to)
				if err != nil {
					return err
				}
				return a.printJSON(stats)
			})
		},
	}
	cmd.Flags().IntVar(&herd, "herd", 20, "number of producing cows")
	cmd.Flags().StringVar(&output, "output-pattern", "seasonal", "steady, seasonal, random or gradual_rise")
	cmd.Flags().StringVar(&spend, "spend-pattern", "steady", "steady, seasonal, random or gradual_rise")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random pattern seed")
	return cmd
}
