/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/infinitran/internal/store"
)

var runsDBPath string

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the translation run history",
	Long:  `List, summarise and prune the runs recorded in the SQLite database.`,
}

func withRunStore(fn func(ctx context.Context, db *store.Store) error) error {
	st, err := loadSettings()
	if err != nil {
		return err
	}
	db, err := openStore(st, runsDBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(context.Background(), db)
}

var runsLimit int

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunStore(func(ctx context.Context, db *store.Store) error {
			runs, err := db.ListRuns(ctx, runsLimit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tWHEN\tSTATE\tFILE\tTARGET\tPROVIDER\tMODEL\tCHUNKS\tFAILED\tRETRIES\tDURATION")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.State,
					snippet(r.Filename, 32), r.TargetLang, r.Provider, snippet(r.Model, 32),
					r.Chunks, r.Failed, r.Retries, r.Duration.Round(time.Second))
			}
			return w.Flush()
		})
	},
}

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunStore(func(ctx context.Context, db *store.Store) error {
			stats, err := db.Stats(ctx)
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}
			fmt.Printf("Runs:            %d\n", stats.Runs)
			fmt.Printf("Failed chunks:   %d\n", stats.FailedChunks)
			fmt.Printf("Glossary terms:  %d\n", stats.GlossaryTerms)
			fmt.Printf("Selected models: %d\n", stats.SelectedModels)
			return nil
		})
	},
}

var runsPruneAge time.Duration

var runsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove runs older than --older-than",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runsPruneAge <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}
		return withRunStore(func(ctx context.Context, db *store.Store) error {
			n, err := db.PruneRuns(ctx, time.Now().Add(-runsPruneAge))
			if err != nil {
				return fmt.Errorf("failed to prune runs: %w", err)
			}
			fmt.Printf("Removed %d runs.\n", n)
			return nil
		})
	},
}

func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.PersistentFlags().StringVar(&runsDBPath, "db", "", "Database path (default: database setting)")
	runsListCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum runs to show (0 = all)")
	runsPruneCmd.Flags().DurationVar(&runsPruneAge, "older-than", 30*24*time.Hour, "Age of the runs to remove")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsStatsCmd)
	runsCmd.AddCommand(runsPruneCmd)
}
