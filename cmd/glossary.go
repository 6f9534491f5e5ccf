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

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/valpere/infinitran/internal/glossary"
	"github.com/valpere/infinitran/internal/store"
)

var glossaryDBPath string

var glossaryCmd = &cobra.Command{
	Use:   "glossary",
	Short: "Manage the terminology glossary",
	Long: `Add, list, delete and import terminology glossary entries.

Glossary entries make sure that specific source terms are always rendered
the same way in the translation. An entry without a target language applies
to every target language; an entry for a specific language takes precedence.
Stored entries override the glossary.terms of the settings file.`,
}

// withStore opens the glossary database for the duration of fn.
func withStore(fn func(ctx context.Context, db *store.Store) error) error {
	st, err := loadSettings()
	if err != nil {
		return err
	}
	db, err := openStore(st, glossaryDBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(context.Background(), db)
}

var glossaryListTarget string

var glossaryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List glossary entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, db *store.Store) error {
			entries, err := db.ListGlossaryTerms(ctx, glossaryListTarget)
			if err != nil {
				return fmt.Errorf("failed to list glossary: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("Glossary is empty.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTARGET LANG\tSOURCE TERM\tTARGET TERM")
			for _, e := range entries {
				lang := e.TargetLang
				if lang == "" {
					lang = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, lang, e.SourceTerm, e.TargetTerm)
			}
			return w.Flush()
		})
	},
}

var glossaryAddTarget string

var glossaryAddCmd = &cobra.Command{
	Use:   "add <source-term> <target-term>",
	Short: "Add or update a glossary entry",
	Long: `Add a glossary entry mapping a source term to its rendering.

Example:
  infinitran glossary add "Kyiv" "Київ" --target uk`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, db *store.Store) error {
			if err := db.AddGlossaryTerm(ctx, glossaryAddTarget, args[0], args[1]); err != nil {
				return fmt.Errorf("failed to add glossary entry: %w", err)
			}
			lang := glossaryAddTarget
			if lang == "" {
				lang = "*"
			}
			fmt.Printf("Added: [%s] %q → %q\n", lang, args[0], args[1])
			return nil
		})
	},
}

var glossaryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a glossary entry by ID",
	Long:  `Delete a glossary entry by its ID (shown in "infinitran glossary list").`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, db *store.Store) error {
			if err := db.DeleteGlossaryTerm(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to delete glossary entry: %w", err)
			}
			fmt.Printf("Deleted glossary entry: %s\n", args[0])
			return nil
		})
	},
}

// glossaryFile is the YAML layout accepted by glossary import. It matches
// the glossary section of the settings file.
type glossaryFile struct {
	TargetLanguage string           `yaml:"target_language"`
	Terms          []glossary.Entry `yaml:"terms"`
}

func readGlossaryFile(path string) (glossaryFile, error) {
	var f glossaryFile
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("failed to read glossary file: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("failed to parse glossary file %s: %w", path, err)
	}
	return f, nil
}

var glossaryImportTarget string

var glossaryImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import glossary entries from a YAML file",
	Long: `Import glossary entries from a YAML file of the form:

  target_language: uk   # optional, --target overrides it
  terms:
    - source: pipeline
      target: конвеєр`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := readGlossaryFile(args[0])
		if err != nil {
			return err
		}
		lang := f.TargetLanguage
		if glossaryImportTarget != "" {
			lang = glossaryImportTarget
		}
		return withStore(func(ctx context.Context, db *store.Store) error {
			n := 0
			for _, e := range f.Terms {
				if err := db.AddGlossaryTerm(ctx, lang, e.Source, e.Target); err != nil {
					fmt.Fprintf(os.Stderr, "Skipped %q: %v\n", e.Source, err)
					continue
				}
				n++
			}
			fmt.Printf("Imported %d of %d glossary entries.\n", n, len(f.Terms))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(glossaryCmd)

	glossaryCmd.PersistentFlags().StringVar(&glossaryDBPath, "db", "", "Database path (default: database setting)")

	glossaryListCmd.Flags().StringVarP(&glossaryListTarget, "target", "t", "", "Only entries that apply to this target language")
	glossaryAddCmd.Flags().StringVarP(&glossaryAddTarget, "target", "t", "", "Target language (default: every language)")
	glossaryImportCmd.Flags().StringVarP(&glossaryImportTarget, "target", "t", "", "Target language for the imported entries")

	glossaryCmd.AddCommand(glossaryListCmd)
	glossaryCmd.AddCommand(glossaryAddCmd)
	glossaryCmd.AddCommand(glossaryDeleteCmd)
	glossaryCmd.AddCommand(glossaryImportCmd)
}
