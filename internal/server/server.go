// Package server exposes the pipeline over HTTP: schema browsing, query
// generation, guarded execution, and a chat-style endpoint combining both.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/koustreak/nlquery/internal/analysis"
	"github.com/koustreak/nlquery/internal/database"
	"github.com/koustreak/nlquery/internal/judge"
	"github.com/koustreak/nlquery/internal/logger"
	"github.com/koustreak/nlquery/internal/reportstore"
	"github.com/koustreak/nlquery/internal/rowset"
	"github.com/koustreak/nlquery/internal/schema"
)

// DefaultRowLimit caps how many rows /api/execute returns.
const DefaultRowLimit = 200

// Describer builds a table descriptor for one database.table.
type Describer interface {
	Describe(ctx context.Context, db, table string) (*schema.TableDescriptor, error)
}

// Runner drives the generate-judge-iterate loop for one question.
type Runner interface {
	Run(ctx context.Context, question string, desc *schema.TableDescriptor) (*judge.JudgeResult, error)
}

// Analyzer turns an executed result set into a table preview and report.
type Analyzer interface {
	Analyze(ctx context.Context, question string, rs *rowset.Rowset) analysis.Report
}

// Server holds the collaborators the HTTP handlers need.
// Nil db disables /api/execute; nil reports disables archiving.
type Server struct {
	db        database.DB
	describer Describer
	pipeline  Runner
	analyzer  Analyzer
	reports   reportstore.Store
	rowLimit  int
	log       *logger.Logger
}

// Options tunes the server.
type Options struct {
	// RowLimit caps rows returned by execute. Non-positive selects the
	// default.
	RowLimit int
}

// New wires the server from its collaborators.
func New(db database.DB, describer Describer, pipeline Runner, analyzer Analyzer, reports reportstore.Store, opts Options, log *logger.Logger) *Server {
	if opts.RowLimit <= 0 {
		opts.RowLimit = DefaultRowLimit
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		db:        db,
		describer: describer,
		pipeline:  pipeline,
		analyzer:  analyzer,
		reports:   reports,
		rowLimit:  opts.RowLimit,
		log:       log,
	}
}

// Router builds the chi router with the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/databases", s.handleDatabases)
		r.Get("/tables", s.handleTables)
		r.Post("/generate", s.handleGenerate)
		r.Post("/execute", s.handleExecute)
		r.Post("/chat", s.handleChat)
		r.Get("/reports/*", s.handleGetReport)
	})

	return r
}

// step records one named stage of a request with its wall time.
type step struct {
	Name     string `json:"name"`
	OK       bool   `json:"ok"`
	Duration int64  `json:"duration_ms"`
}

// stepTimer accumulates steps as a handler progresses.
type stepTimer struct {
	steps []step
	last  time.Time
}

func newStepTimer() *stepTimer {
	return &stepTimer{steps: []step{}, last: time.Now()}
}

func (t *stepTimer) mark(name string, ok bool) {
	now := time.Now()
	t.steps = append(t.steps, step{Name: name, OK: ok, Duration: now.Sub(t.last).Milliseconds()})
	t.last = now
}
