package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/newsgraph/internal/db"
	"horse.fit/newsgraph/internal/globaltime"
	"horse.fit/newsgraph/internal/news"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
	defaultWindow    = 7 * 24 * time.Hour
)

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server exposes the article graph over a read-mostly JSON API. The only
// mutating route triggers a duplicate-merge sweep.
type Server struct {
	pool   *db.Pool
	merger *news.Merger
	logger zerolog.Logger
	opts   Options
}

func NewServer(pool *db.Pool, merger *news.Merger, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 60 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		pool:   pool,
		merger: merger,
		logger: logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.GET("/articles", s.handleArticles)
	api.GET("/sources", s.handleSources)
	api.GET("/categories", s.handleCategories)
	api.POST("/merge-duplicates", s.handleMergeDuplicates)

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("newsgraph api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("newsgraph api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		if text, ok := he.Message.(string); ok && strings.TrimSpace(text) != "" {
			message = text
		} else if text := http.StatusText(status); text != "" {
			message = text
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "newsgraph",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.pool.Stats(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("query stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}

func (s *Server) handleArticles(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultListLimit, 1, maxListLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	categoryID := int64(0)
	if raw := strings.TrimSpace(c.QueryParam("category_id")); raw != "" {
		categoryID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || categoryID <= 0 {
			return failValidation(c, map[string]string{"category_id": "must be a positive integer"})
		}
	}

	from, err := parseTimeFilter(c.QueryParam("from"), false)
	if err != nil {
		return failValidation(c, map[string]string{"from": "must be RFC3339 or YYYY-MM-DD"})
	}
	to, err := parseTimeFilter(c.QueryParam("to"), true)
	if err != nil {
		return failValidation(c, map[string]string{"to": "must be RFC3339 or YYYY-MM-DD"})
	}

	now := globaltime.UTC()
	if to == nil {
		to = &now
	}
	if from == nil {
		start := to.Add(-defaultWindow)
		from = &start
	}
	if !from.Before(*to) {
		return failValidation(c, map[string]string{"time_range": "from must be before to"})
	}

	items, err := s.pool.ListArticles(c.Request().Context(), db.ArticleListOptions{
		CategoryID: categoryID,
		From:       *from,
		To:         *to,
		Limit:      limit,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("query articles failed")
		return internalError(c, "Failed to load articles")
	}

	return success(c, map[string]any{
		"items": items,
		"filters": map[string]any{
			"category_id": categoryID,
			"from":        from,
			"to":          to,
			"limit":       limit,
		},
	})
}

func (s *Server) handleSources(c echo.Context) error {
	sources, err := s.pool.ListSources(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("query sources failed")
		return internalError(c, "Failed to load sources")
	}
	return success(c, map[string]any{
		"items": sources,
	})
}

func (s *Server) handleCategories(c echo.Context) error {
	categories, err := s.pool.CategoriesWithFeeds(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("query categories failed")
		return internalError(c, "Failed to load categories")
	}
	return success(c, map[string]any{
		"items": categories,
	})
}

func (s *Server) handleMergeDuplicates(c echo.Context) error {
	if s.merger == nil {
		return fail(c, http.StatusServiceUnavailable, "Merge engine is not configured", nil)
	}
	merged, err := s.merger.MergeDuplicates(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("merge duplicates failed")
		return internalError(c, "Failed to merge duplicates")
	}
	return success(c, map[string]any{
		"merged_duplicates": merged,
	})
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}

func parseTimeFilter(raw string, endOfDay bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		utc := ts.UTC()
		return &utc, nil
	}

	if day, err := time.Parse("2006-01-02", trimmed); err == nil {
		utc := day.UTC()
		if endOfDay {
			utc = utc.Add((24 * time.Hour) - time.Nanosecond)
		}
		return &utc, nil
	}

	return nil, fmt.Errorf("invalid time format")
}
