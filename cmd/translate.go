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
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/infinitran/internal"
	"github.com/valpere/infinitran/internal/orchestrator"
	"github.com/valpere/infinitran/internal/progress"
	"github.com/valpere/infinitran/internal/service"
	"github.com/valpere/infinitran/internal/store"
)

var (
	inputFile  string
	outputDir  string
	targetLang string
	modelName  string
	providerID string

	mode        string
	concurrency int
	preset      string
	contextSize int

	renderHTML    bool
	checkLanguage bool
	quiet         bool

	dbPath    string
	noHistory bool
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate a markdown document",
	Long: `Translate a markdown document through the active LLM provider.

The document is split by headings into sections and each section into
overlapping chunks. Chunks are translated with the previous translations as
context, then reassembled in their original order. A chunk that still fails
after all retries is kept as a marked error line and the run continues.

Providers (credentials are read from .env or the environment):
  - siliconflow  SILICONFLOW_API_KEY
  - openrouter   OPENROUTER_API_KEY
  - openai       OPENAI_API_KEY
  - ollama       OLLAMA_HOST (optional, defaults to http://localhost:11434)

Chunk size presets: default, compact, wide`,
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(inputFile)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}

		st, err := loadSettings()
		if err != nil {
			return err
		}

		var db *store.Store
		if !noHistory {
			db, err = openStore(st, dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
		}

		opts := service.Options{Store: db, Logger: newLogger("[service] ")}
		if checkLanguage {
			opts.Checker = newChecker(st, targetLang)
		}
		svc := service.New(st, opts)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sub := svc.Hub().Subscribe()
		done := make(chan struct{})
		go func() {
			defer close(done)
			printProgress(sub)
		}()

		res, err := svc.Translate(ctx, service.Request{
			Document: internal.Document{
				Content:    content,
				Filename:   filepath.Base(inputFile),
				TargetLang: targetLang,
			},
			Provider: providerID,
			Model:    modelName,
			Overrides: service.Overrides{
				Mode:          mode,
				MaxConcurrent: concurrency,
				Preset:        preset,
				ContextWindow: contextSize,
				CheckLanguage: checkLanguage,
			},
		})
		sub.Close()
		<-done
		if err != nil {
			if res != nil && res.State == orchestrator.StateAborted {
				return fmt.Errorf("translation aborted after %d of %d chunks: %w", translated(res), len(res.Chunks), err)
			}
			return fmt.Errorf("translation failed: %w", err)
		}

		out := res.Output
		if renderHTML {
			out = out.HTML()
		}
		dir := outputDir
		if dir == "" {
			dir = filepath.Dir(inputFile)
		}
		outPath := filepath.Join(dir, out.Filename)
		if abs(outPath) == abs(inputFile) {
			return fmt.Errorf("output file %s would overwrite the input file", outPath)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := os.WriteFile(outPath, out.Content, 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}

		fmt.Printf("Successfully translated %s to %s\n", inputFile, outPath)
		fmt.Printf("Provider: %s (%s)\n", res.Provider, res.Model)
		fmt.Printf("Chunks: %d in %d sections, %d failed, %d retries, %s\n",
			len(res.Chunks), res.Sections, res.Failed, res.Retries, res.Duration.Round(time.Millisecond))
		if res.Failed > 0 {
			fmt.Fprintf(os.Stderr, "Warning: %d chunks were not translated, search the output for %q\n", res.Failed, orchestrator.FailureMarker)
		}
		return nil
	},
}

// printProgress writes one line per snapshot to stderr until sub closes.
func printProgress(sub *progress.Subscription) {
	last := progress.Snapshot{Progress: -1}
	for snap := range sub.C {
		if quiet || snap == last {
			continue
		}
		last = snap
		if snap.TotalChunks > 0 {
			fmt.Fprintf(os.Stderr, "[%3d%%] %d/%d %s\n", snap.Progress, snap.TranslatedChunks, snap.TotalChunks, snap.Status)
		} else {
			fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", snap.Progress, snap.Status)
		}
	}
}

func translated(res *orchestrator.Result) int {
	n := 0
	for _, c := range res.Chunks {
		if c.State == orchestrator.ChunkDone {
			n++
		}
	}
	return n
}

func abs(path string) string {
	if p, err := filepath.Abs(path); err == nil {
		return p
	}
	return path
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Markdown file to translate (required)")
	translateCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default: next to the input file)")
	translateCmd.Flags().StringVarP(&targetLang, "target", "t", "", "Target language tag (default: target_language setting)")
	translateCmd.Flags().StringVarP(&modelName, "model", "m", "", "Model name; remembered as the provider's selected model")
	translateCmd.Flags().StringVar(&providerID, "provider", "", "Provider id (default: active_provider setting)")

	translateCmd.Flags().StringVar(&mode, "mode", "", "Scheduling mode: sequential or concurrent")
	translateCmd.Flags().IntVar(&concurrency, "concurrency", 0, "Maximum chunks in flight in concurrent mode")
	translateCmd.Flags().StringVar(&preset, "preset", "", "Chunk size preset: default, compact or wide")
	translateCmd.Flags().IntVar(&contextSize, "context", 0, "Number of previous translations passed as context")

	translateCmd.Flags().BoolVar(&renderHTML, "html", false, "Write a standalone HTML page instead of markdown")
	translateCmd.Flags().BoolVar(&checkLanguage, "check-language", false, "Retry chunks whose translation is not in the target language")
	translateCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print progress")

	translateCmd.Flags().StringVar(&dbPath, "db", "", "Database path (default: database setting)")
	translateCmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not use the database for glossary, model or run history")

	translateCmd.MarkFlagRequired("input")
}
