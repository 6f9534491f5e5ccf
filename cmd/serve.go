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
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/valpere/infinitran/internal/orchestrator"
	"github.com/valpere/infinitran/internal/progress"
	"github.com/valpere/infinitran/internal/server"
	"github.com/valpere/infinitran/internal/service"
)

var (
	serveAddr          string
	serveDBPath        string
	serveCheckLanguage bool
	serveMaxUpload     int64
	shutdownTimeout    time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP front end.

Endpoints:
  POST /translate            multipart upload (file, model_name, target_language)
  GET  /translate-progress   progress as server-sent events
  GET  /api/providers        configured providers and the active one
  GET  /api/languages        language list and target language
  POST /api/settings         update active_provider, model_name, target_language
  POST /api/set-provider     switch the active provider
  GET  /api/runs             run history
  GET  /metrics              prometheus metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := loadSettings()
		if err != nil {
			return err
		}
		if err := st.Validate(); err != nil {
			return err
		}

		db, err := openStore(st, serveDBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		hub := progress.NewHub(progress.DefaultOptions())
		opts := service.Options{
			Store:           db,
			Hub:             hub,
			Metrics:         orchestrator.NewMetrics(reg),
			Logger:          log.New(os.Stderr, "[service] ", log.LstdFlags),
			PersistSettings: true,
		}
		if serveCheckLanguage {
			opts.Checker = newChecker(st)
		}
		svc := service.New(st, opts)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := server.New(svc, st, hub, server.Options{
			Store:       db,
			Gatherer:    reg,
			MaxUpload:   serveMaxUpload,
			BaseContext: ctx,
		})

		addr := serveAddr
		if addr == "" {
			addr = st.Config().Server.Addr
		}
		fmt.Fprintf(os.Stderr, "Serving on http://%s (provider %s)\n", addr, st.ActiveProvider())

		errc := make(chan error, 1)
		go func() { errc <- srv.Start(addr) }()

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}

		fmt.Fprintf(os.Stderr, "Shutting down...\n")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return <-errc
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server.addr setting)")
	serveCmd.Flags().StringVar(&serveDBPath, "db", "", "Database path (default: database setting)")
	serveCmd.Flags().BoolVar(&serveCheckLanguage, "check-language", false, "Retry chunks whose translation is not in the target language")
	serveCmd.Flags().Int64Var(&serveMaxUpload, "max-upload", 20<<20, "Maximum upload size in bytes")
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "Grace period for in-flight requests")
}
