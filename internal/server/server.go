// Package server exposes translation over HTTP: document upload, a
// server-sent-events progress stream and the settings endpoints used by a
// browser front end.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/valpere/infinitran/internal"
	"github.com/valpere/infinitran/internal/orchestrator"
	"github.com/valpere/infinitran/internal/progress"
	"github.com/valpere/infinitran/internal/service"
	"github.com/valpere/infinitran/internal/settings"
	"github.com/valpere/infinitran/internal/store"
)

const (
	defaultMaxUpload = 20 << 20
	defaultKeepAlive = 15 * time.Second
)

// Translator runs one document translation.
type Translator interface {
	Translate(ctx context.Context, req service.Request) (*orchestrator.Result, error)
}

type Options struct {
	// Store enables GET /api/runs.
	Store *store.Store
	// Gatherer backs /metrics; prometheus.DefaultGatherer when nil.
	Gatherer  prometheus.Gatherer
	Logger    *log.Logger
	MaxUpload int64
	KeepAlive time.Duration
	// BaseContext, when set, parents every request context so that open
	// progress streams end when it is cancelled.
	BaseContext context.Context
}

type Server struct {
	e        *echo.Echo
	tr       Translator
	settings *settings.Settings
	hub      *progress.Hub
	opts     Options
	logger   *log.Logger
}

func New(tr Translator, st *settings.Settings, hub *progress.Hub, opts Options) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = defaultMaxUpload
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = defaultKeepAlive
	}

	s := &Server{tr: tr, settings: st, hub: hub, opts: opts, logger: opts.Logger}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	if opts.BaseContext != nil {
		e.Server.BaseContext = func(net.Listener) context.Context { return opts.BaseContext }
	}
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderContentType},
		ExposeHeaders: []string{echo.HeaderContentDisposition, "X-Run-Id", "X-Failed-Chunks"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))

	e.POST("/translate", s.translate)
	e.GET("/translate-progress", s.progressStream)

	api := e.Group("/api")
	api.GET("/providers", s.providers)
	api.GET("/languages", s.languages)
	api.POST("/settings", s.updateSettings)
	api.POST("/set-provider", s.setProvider)
	if opts.Store != nil {
		api.GET("/runs", s.runs)
	}

	s.e = e
	return s
}

func (s *Server) Handler() http.Handler { return s.e }

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Printf("listening on %s", addr)
	err := s.e.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) handleError(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	}
	req := c.Request()
	s.logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
	if !c.Response().Committed {
		_ = c.JSON(code, map[string]string{"message": msg})
	}
}

func (s *Server) translate(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	if fh.Size > s.opts.MaxUpload {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", s.opts.MaxUpload))
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read upload")
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, s.opts.MaxUpload+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read upload")
	}
	if int64(len(content)) > s.opts.MaxUpload {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", s.opts.MaxUpload))
	}

	req := service.Request{
		Document: internal.Document{
			Content:    content,
			Filename:   fh.Filename,
			TargetLang: c.FormValue("target_language"),
		},
		Provider: c.FormValue("provider"),
		Model:    c.FormValue("model_name"),
	}
	res, err := s.tr.Translate(c.Request().Context(), req)
	if err != nil {
		code := translateStatus(err)
		s.logger.Printf("translation of %q failed (%d): %v", fh.Filename, code, err)
		return c.JSON(code, map[string]string{"message": "Translation failed: " + err.Error()})
	}

	out, ctype := res.Output, "text/markdown; charset=utf-8"
	if c.FormValue("format") == "html" {
		out, ctype = out.HTML(), echo.MIMETextHTMLCharsetUTF8
	}
	h := c.Response().Header()
	h.Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", out.Filename))
	h.Set("X-Run-Id", res.RunID)
	h.Set("X-Failed-Chunks", strconv.Itoa(res.Failed))
	return c.Blob(http.StatusOK, ctype, out.Content)
}

func translateStatus(err error) int {
	var ce *internal.ConfigError
	var fe *internal.FormatError
	switch {
	case errors.Is(err, service.ErrBusy):
		return http.StatusConflict
	case errors.As(err, &fe):
		return http.StatusUnprocessableEntity
	case errors.As(err, &ce):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// progressStream relays hub snapshots as server-sent events until the
// client goes away.
func (s *Server) progressStream(c echo.Context) error {
	resp := c.Response()
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.hub.Subscribe()
	defer sub.Close()

	ticker := time.NewTicker(s.opts.KeepAlive)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-sub.C:
			if !ok {
				return nil
			}
			data, err := json.Marshal(snap)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(resp, "data: %s\n\n", data); err != nil {
				return nil
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := io.WriteString(resp, ": keepalive\n\n"); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}

func (s *Server) providers(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"providers":       s.settings.Providers(),
		"active_provider": s.settings.ActiveProvider(),
	})
}

func (s *Server) languages(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"language_list":   s.settings.Languages(),
		"target_language": s.settings.TargetLanguage(),
	})
}

func (s *Server) updateSettings(c echo.Context) error {
	var p settings.Patch
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid settings payload")
	}
	return s.applyPatch(c, p)
}

func (s *Server) setProvider(c echo.Context) error {
	var body struct {
		Provider string `json:"provider"`
	}
	if err := c.Bind(&body); err != nil || body.Provider == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "provider is required")
	}
	return s.applyPatch(c, settings.Patch{ActiveProvider: body.Provider})
}

func (s *Server) applyPatch(c echo.Context, p settings.Patch) error {
	if err := s.settings.Update(p); err != nil {
		var ce *internal.ConfigError
		if errors.As(err, &ce) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return err
	}
	if err := s.settings.Save(); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Settings updated successfully"})
}

func (s *Server) runs(c echo.Context) error {
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}
	runs, err := s.opts.Store.ListRuns(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	if runs == nil {
		runs = []store.Run{}
	}
	return c.JSON(http.StatusOK, map[string]any{"runs": runs})
}
