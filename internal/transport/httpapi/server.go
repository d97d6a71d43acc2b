// Package httpapi is a JSON-over-HTTP control surface for the engine.
// It is a reference transport, not core: every handler here only calls
// exported engine.Manager methods and translates between JSON and plain
// Go types, so a different transport (a TUI's internal dispatch, a
// desktop app's IPC) could replace it without the engine package ever
// knowing it existed.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/floodgate-dl/floodgate/internal/engine"
)

// Server wires the engine.Manager up to an echo router.
type Server struct {
	manager *engine.Manager
	log     zerolog.Logger
	echo    *echo.Echo
}

// New builds a Server with its routes registered. Call Start to listen.
func New(manager *engine.Manager, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			log.Info().Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).Dur("latency", v.Latency).Msg("request")
			return nil
		},
	}))

	s := &Server{manager: manager, log: log, echo: e}

	e.POST("/api/query-url", s.handleQueryURL)
	e.POST("/api/downloads", s.handleDoDownload)
	e.GET("/api/downloads", s.handleDownloadList)
	e.GET("/api/downloads/stream", s.handleDownloadListStream)
	e.GET("/api/downloads/:id", s.handleDownloadDetails)
	e.POST("/api/downloads/:id/pause", s.handlePause)
	e.POST("/api/downloads/:id/resume", s.handleResume)
	e.POST("/api/downloads/:id/cancel", s.handleCancel)
	e.PATCH("/api/settings", s.handleUpdateSettings)

	return s
}

// Start blocks serving on addr (e.g. ":8080").
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// UrlQueryOutput answers a QueryUrl command.
type UrlQueryOutput struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	TotalSize   *int64 `json:"total_size,omitempty"`
	AcceptRange bool   `json:"accept_ranges"`
	ContentType string `json:"content_type,omitempty"`
	IsWebpage   bool   `json:"is_webpage"`
	Error       string `json:"error,omitempty"`
}

func (s *Server) handleQueryURL(c *echo.Context) error {
	var req struct {
		URL string `json:"url"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, UrlQueryOutput{Error: "malformed request body"})
	}

	result, err := s.manager.QueryURL(c.Request().Context(), req.URL)
	if err != nil {
		return c.JSON(http.StatusOK, UrlQueryOutput{URL: req.URL, Error: err.Error()})
	}

	out := UrlQueryOutput{
		URL:         req.URL,
		Name:        result.Filename,
		AcceptRange: result.AcceptRange,
		ContentType: result.ContentType,
		IsWebpage:   result.IsWebpage,
	}
	if result.TotalSize >= 0 {
		out.TotalSize = &result.TotalSize
	}
	return c.JSON(http.StatusOK, out)
}

type doDownloadRequest struct {
	URL         string `json:"url"`
	Dest        string `json:"dest"`
	VideoFormat string `json:"video_format"`
	AudioFormat string `json:"audio_format"`
	IsYtdl      bool   `json:"is_ytdl"`
}

func (s *Server) handleDoDownload(c *echo.Context) error {
	var req doDownloadRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed request body"})
	}
	if req.Dest == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "dest is required"})
	}

	var id engine.JobID
	if req.IsYtdl {
		if req.VideoFormat == "" || req.AudioFormat == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "video_format and audio_format are required for a ytdl download"})
		}
		id = s.manager.SubmitYtdl(req.Dest, req.VideoFormat, req.AudioFormat)
	} else {
		if req.URL == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "url is required"})
		}
		id = s.manager.Submit(req.URL, req.Dest)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id.String()})
}

func (s *Server) jobID(c *echo.Context) (engine.JobID, error) {
	return engine.ParseJobID(c.Param("id"))
}

func (s *Server) handlePause(c *echo.Context) error {
	id, err := s.jobID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed id"})
	}
	if err := s.manager.Pause(id); err != nil {
		return jobCommandError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleResume(c *echo.Context) error {
	id, err := s.jobID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed id"})
	}
	if err := s.manager.Resume(id); err != nil {
		return jobCommandError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleCancel(c *echo.Context) error {
	id, err := s.jobID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed id"})
	}
	if err := s.manager.Cancel(id); err != nil {
		return jobCommandError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

// DownloadDetails is the GetDownloadDetails response shape.
type DownloadDetails struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	URL        string  `json:"url"`
	Dest       string  `json:"dest"`
	TotalSize  *int64  `json:"total_size,omitempty"`
	Downloaded int64   `json:"downloaded"`
	Speed      float64 `json:"speed"`
	State      string  `json:"state"`
}

func glanceToDetails(g engine.JobGlance) DownloadDetails {
	d := DownloadDetails{
		ID:         g.ID.String(),
		Name:       g.Dest,
		URL:        g.URL,
		Dest:       g.Dest,
		Downloaded: g.Downloaded,
		Speed:      g.Speed,
		State:      g.State.String(),
	}
	if g.HasSize {
		total := g.TotalSize
		d.TotalSize = &total
	}
	return d
}

func (s *Server) handleDownloadDetails(c *echo.Context) error {
	id, err := s.jobID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed id"})
	}
	glance, err := s.manager.Detail(id)
	if err != nil {
		return jobCommandError(c, err)
	}
	return c.JSON(http.StatusOK, glanceToDetails(glance))
}

// DownloadListItem is one row of a DownloadList signal.
type DownloadListItem struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	TotalSize  *int64  `json:"total_size,omitempty"`
	Downloaded int64   `json:"downloaded"`
	Speed      float64 `json:"speed"`
	State      string  `json:"state"`
}

func downloadList(glances []engine.JobGlance) []DownloadListItem {
	out := make([]DownloadListItem, 0, len(glances))
	for _, g := range glances {
		item := DownloadListItem{
			ID: g.ID.String(), Name: g.Dest,
			Downloaded: g.Downloaded, Speed: g.Speed, State: g.State.String(),
		}
		if g.HasSize {
			total := g.TotalSize
			item.TotalSize = &total
		}
		out = append(out, item)
	}
	return out
}

func (s *Server) handleDownloadList(c *echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"list": downloadList(s.manager.Glance())})
}

// handleDownloadListStream pushes a DownloadList signal over SSE once a
// second, matching spec's 1 Hz broadcast cadence, until the client
// disconnects.
func (s *Server) handleDownloadListStream(c *echo.Context) error {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			payload, err := json.Marshal(echo.Map{"list": downloadList(s.manager.Glance())})
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(resp, "data: %s\n\n", payload); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}

type updateSettingsRequest struct {
	ServerPort        *int    `json:"server_port"`
	SpeedLimit        *uint64 `json:"speed_limit"`
	DownloadThreads   *int    `json:"download_threads"`
	ConcurrencyLimit  *int    `json:"concurrency_limit"`
	DownloadTimeoutMs *int64  `json:"download_timeout_ms"`
	DownloadRetries   *int    `json:"download_retries"`
}

func (s *Server) handleUpdateSettings(c *echo.Context) error {
	var req updateSettingsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed request body"})
	}

	patch := engine.SettingsPatch{
		ServerPort:       req.ServerPort,
		SpeedLimit:       req.SpeedLimit,
		DownloadThreads:  req.DownloadThreads,
		ConcurrencyLimit: req.ConcurrencyLimit,
		DownloadRetries:  req.DownloadRetries,
	}
	if req.DownloadTimeoutMs != nil {
		d := time.Duration(*req.DownloadTimeoutMs) * time.Millisecond
		patch.DownloadTimeout = &d
	}
	s.manager.UpdateSettings(patch)
	return c.NoContent(http.StatusOK)
}

// jobCommandError maps an engine error to the status codes spec's error
// handling design calls for: unknown id is NotFound, anything else is a
// plain 500.
func jobCommandError(c *echo.Context, err error) error {
	var notFound *engine.NotFoundError
	if errors.As(err, &notFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
}
