// Package dashboard serves a read-only view over a logs root: one folder
// per run, each with its catalog.
package dashboard

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ChizhovVadim/tfplus/internal/listener"
	"github.com/labstack/echo/v4"
)

type Server struct {
	e      *echo.Echo
	root   string
	logger *slog.Logger
}

type RunInfo struct {
	ID       string    `json:"id"`
	Files    int       `json:"files"`
	Modified time.Time `json:"modified"`
}

func NewServer(root string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	var e = echo.New()
	e.HideBanner = true
	e.HidePort = true
	var s = &Server{e: e, root: root, logger: logger}

	e.Use(s.logRequests)
	e.GET("/deep-dashboard", s.getDashboard)
	var g = e.Group("/api/")
	g.GET("runs", s.getRuns)
	g.GET("runs/:id/catalog", s.getCatalog)
	g.GET("runs/:id/files/:name", s.getFile)
	return s
}

// Handler exposes the routes, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) Start(addr string) error {
	s.logger.Info("dashboard listening", "addr", addr, "root", s.root)
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) logRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		var start = time.Now()
		err := next(c)
		s.logger.Debug("request", "method", c.Request().Method, "path", c.Request().URL.Path,
			"status", c.Response().Status, "elapsed", time.Since(start))
		return err
	}
}

// validName rejects anything that could leave the logs root.
func validName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && !strings.HasPrefix(name, ".")
}

func (s *Server) runFolder(id string) (string, error) {
	if !validName(id) {
		return "", echo.NewHTTPError(http.StatusBadRequest, "bad run id")
	}
	var folder = filepath.Join(s.root, id)
	if info, err := os.Stat(folder); err != nil || !info.IsDir() {
		return "", echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	return folder, nil
}

func (s *Server) listRuns() ([]RunInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var runs = []RunInfo{}
	for _, entry := range entries {
		if !entry.IsDir() || !validName(entry.Name()) {
			continue
		}
		var folder = filepath.Join(s.root, entry.Name())
		catalog, err := listener.ReadCatalog(folder)
		if err != nil || catalog == nil {
			continue
		}
		info, err := os.Stat(filepath.Join(folder, listener.CatalogName))
		if err != nil {
			continue
		}
		runs = append(runs, RunInfo{ID: entry.Name(), Files: len(catalog), Modified: info.ModTime().UTC()})
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Modified.After(runs[j].Modified)
	})
	return runs, nil
}

func (s *Server) getRuns(c echo.Context) error {
	runs, err := s.listRuns()
	if err != nil {
		s.logger.Error("list runs", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *Server) getCatalog(c echo.Context) error {
	folder, err := s.runFolder(c.Param("id"))
	if err != nil {
		return err
	}
	entries, err := listener.ReadCatalog(folder)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if entries == nil {
		entries = []listener.CatalogEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

// getFile serves files listed in the catalog and the catalog itself.
func (s *Server) getFile(c echo.Context) error {
	folder, err := s.runFolder(c.Param("id"))
	if err != nil {
		return err
	}
	var name = c.Param("name")
	if !validName(name) {
		return echo.NewHTTPError(http.StatusBadRequest, "bad file name")
	}
	if name != listener.CatalogName {
		entries, err := listener.ReadCatalog(folder)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		var listed bool
		for _, e := range entries {
			listed = listed || e.Filename == name
		}
		if !listed {
			return echo.NewHTTPError(http.StatusNotFound, "file not in catalog")
		}
	}
	return c.File(filepath.Join(folder, name))
}

var dashboardPage = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html><head><title>{{.ID}}</title></head><body>
<h1>{{.ID}}</h1>
{{range .Entries}}<h2>{{.Name}}</h2>
{{if eq .Type "image"}}<img src="/api/runs/{{$.ID}}/files/{{.Filename}}">
{{else}}<a href="/api/runs/{{$.ID}}/files/{{.Filename}}">{{.Filename}}</a>
{{end}}{{end}}
</body></html>
`))

func (s *Server) getDashboard(c echo.Context) error {
	var id = c.QueryParam("id")
	if id == "" {
		runs, err := s.listRuns()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		if len(runs) == 0 {
			return echo.NewHTTPError(http.StatusNotFound, "no runs")
		}
		id = runs[0].ID
	}
	folder, err := s.runFolder(id)
	if err != nil {
		return err
	}
	entries, err := listener.ReadCatalog(folder)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	var page strings.Builder
	err = dashboardPage.Execute(&page, struct {
		ID      string
		Entries []listener.CatalogEntry
	}{id, entries})
	if err != nil {
		return err
	}
	return c.HTML(http.StatusOK, page.String())
}
