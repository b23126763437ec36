package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/koustreak/nlquery/internal/analysis"
	"github.com/koustreak/nlquery/internal/errs"
	"github.com/koustreak/nlquery/internal/judge"
	"github.com/koustreak/nlquery/internal/reportstore"
	"github.com/koustreak/nlquery/internal/rowset"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			s.respondJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "degraded", "database": err.Error(),
			})
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"status": status})
}

func (s *Server) handleDatabases(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.respondError(w, errs.New(errs.ErrKindConnectionFailed, "no database configured"))
		return
	}

	names, err := s.db.ListDatabases(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"ok": true, "databases": names})
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	dbName := strings.TrimSpace(r.URL.Query().Get("database"))
	if dbName == "" {
		s.respondError(w, errs.New(errs.ErrKindInvalidInput, "database query parameter is required"))
		return
	}
	if s.db == nil {
		s.respondError(w, errs.New(errs.ErrKindConnectionFailed, "no database configured"))
		return
	}

	tables, err := s.db.ListTables(r.Context(), dbName)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"ok": true, "tables": tables})
}

type generateRequest struct {
	Database string `json:"database"`
	Table    string `json:"table"`
	Question string `json:"question"`
}

type generateResponse struct {
	OK     bool               `json:"ok"`
	SQL    string             `json:"sql,omitempty"`
	Judge  *judge.JudgeResult `json:"judge,omitempty"`
	Steps  []step             `json:"steps"`
	Timing map[string]int64   `json:"timing"`
	Error  string             `json:"error,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	start := time.Now()
	timer := newStepTimer()

	desc, err := s.describer.Describe(r.Context(), req.Database, req.Table)
	if err != nil {
		s.respondError(w, err)
		return
	}
	timer.mark("describe", true)

	result, err := s.pipeline.Run(r.Context(), req.Question, desc)
	if err != nil {
		s.respondError(w, err)
		return
	}
	timer.mark("judge", result.Accepted)

	resp := generateResponse{
		OK:     result.Accepted,
		Judge:  result,
		Steps:  timer.steps,
		Timing: map[string]int64{"total": time.Since(start).Milliseconds()},
	}
	if result.Accepted {
		resp.SQL = result.SQL()
	} else {
		resp.Error = "no valid query within the iteration budget: " + result.LastJudge.Reason
	}
	s.respondJSON(w, http.StatusOK, resp)
}

type executeRequest struct {
	Database string `json:"database"`
	Table    string `json:"table"`
	Question string `json:"question,omitempty"`
	SQL      string `json:"sql"`
}

type executeResponse struct {
	OK       bool             `json:"ok"`
	Result   *rowset.Rowset   `json:"result,omitempty"`
	Analysis *analysis.Report `json:"analysis,omitempty"`
	Steps    []step           `json:"steps"`
	Error    string           `json:"error,omitempty"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		s.respondError(w, errs.New(errs.ErrKindInvalidInput, "sql is required"))
		return
	}
	if s.db == nil {
		s.respondError(w, errs.New(errs.ErrKindConnectionFailed, "no database configured"))
		return
	}

	timer := newStepTimer()

	desc, err := s.describer.Describe(r.Context(), req.Database, req.Table)
	if err != nil {
		s.respondError(w, err)
		return
	}
	timer.mark("describe", true)

	// user-supplied SQL passes the same structural gate as generated SQL:
	// single statement, read-only, balanced
	guard := judge.SyntaxValidator{}.Check(judge.Candidate{SQL: req.SQL}, desc)
	timer.mark("guard", guard.Valid)
	if !guard.Valid {
		s.respondJSON(w, http.StatusBadRequest, executeResponse{
			Steps: timer.steps,
			Error: guard.Reason,
		})
		return
	}

	rows, err := s.db.Query(r.Context(), req.SQL)
	if err != nil {
		s.respondError(w, err)
		return
	}
	rs, err := rowset.FromRows(rows, s.rowLimit)
	if err != nil {
		s.respondError(w, err)
		return
	}
	timer.mark("execute", true)

	rep := s.analyzer.Analyze(r.Context(), req.Question, rs)
	timer.mark("analyze", true)

	s.archive(r, req.Question, req.SQL, rep)

	s.respondJSON(w, http.StatusOK, executeResponse{
		OK:       true,
		Result:   rs,
		Analysis: &rep,
		Steps:    timer.steps,
	})
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	History  []chatMessage `json:"history"`
	Database string        `json:"database"`
	Table    string        `json:"table"`
}

// outMessage is one typed entry of a chat reply.
type outMessage struct {
	Type    string             `json:"type"` // text | sql | judge | table | analysis
	Content string             `json:"content,omitempty"`
	Judge   *judge.JudgeResult `json:"judge,omitempty"`
	Result  *rowset.Rowset     `json:"result,omitempty"`
}

type chatResponse struct {
	OK       bool         `json:"ok"`
	Messages []outMessage `json:"messages"`
	Error    string       `json:"error,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	question := lastUserMessage(req.History)
	if question == "" {
		s.respondError(w, errs.New(errs.ErrKindInvalidInput, "history contains no user message"))
		return
	}

	desc, err := s.describer.Describe(r.Context(), req.Database, req.Table)
	if err != nil {
		s.respondError(w, err)
		return
	}

	result, err := s.pipeline.Run(r.Context(), question, desc)
	if err != nil {
		s.respondError(w, err)
		return
	}

	messages := []outMessage{{Type: "judge", Judge: result}}

	if !result.Accepted {
		messages = append(messages, outMessage{
			Type:    "text",
			Content: "I could not produce a valid query for that question: " + result.LastJudge.Reason,
		})
		s.respondJSON(w, http.StatusOK, chatResponse{OK: false, Messages: messages})
		return
	}

	sql := result.SQL()
	messages = append(messages, outMessage{Type: "sql", Content: sql})

	if s.db == nil {
		s.respondJSON(w, http.StatusOK, chatResponse{OK: true, Messages: messages})
		return
	}

	rows, err := s.db.Query(r.Context(), sql)
	if err != nil {
		s.respondError(w, err)
		return
	}
	rs, err := rowset.FromRows(rows, s.rowLimit)
	if err != nil {
		s.respondError(w, err)
		return
	}
	messages = append(messages, outMessage{Type: "table", Result: rs})

	rep := s.analyzer.Analyze(r.Context(), question, rs)
	if rep.Report != "" {
		messages = append(messages, outMessage{Type: "analysis", Content: rep.Report})
	}
	s.archive(r, question, sql, rep)

	s.respondJSON(w, http.StatusOK, chatResponse{OK: true, Messages: messages})
}

// presignTTL bounds how long a report download link stays valid.
const presignTTL = 15 * time.Minute

type reportResponse struct {
	OK     bool                        `json:"ok"`
	Report *reportstore.ArchivedReport `json:"report"`
	URL    string                      `json:"url,omitempty"`
}

// handleGetReport loads an archived report by its object key and attaches a
// presigned download URL for the raw object when the backend can issue one.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		s.respondError(w, errs.New(errs.ErrKindConnectionFailed, "no report store configured"))
		return
	}

	key := chi.URLParam(r, "*")
	if key == "" {
		s.respondError(w, errs.New(errs.ErrKindInvalidInput, "report key is required"))
		return
	}

	rep, err := s.reports.GetReport(r.Context(), key)
	if err != nil {
		s.respondError(w, err)
		return
	}

	resp := reportResponse{OK: true, Report: rep}
	url, err := s.reports.PresignGetURL(r.Context(), key, presignTTL)
	if err != nil {
		s.log.With().Err(err).Str("key", key).Logger().Warn("failed to presign report URL")
	} else {
		resp.URL = url
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// archive persists the analysis when a report store is configured.
// Archive failures are logged, never surfaced.
func (s *Server) archive(r *http.Request, question, sql string, rep analysis.Report) {
	if s.reports == nil {
		return
	}
	key, err := s.reports.PutReport(r.Context(), &reportstore.ArchivedReport{
		Question: question,
		SQL:      sql,
		Table:    rep.Table,
		Report:   rep.Report,
	})
	if err != nil {
		s.log.With().Err(err).Logger().Warn("failed to archive report")
		return
	}
	s.log.With().Str("key", key).Logger().Debug("report archived")
}

func lastUserMessage(history []chatMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			return strings.TrimSpace(history[i].Content)
		}
	}
	return ""
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "invalid request body", err)
	}
	return nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.With().Err(err).Logger().Error("failed to encode response")
	}
}

// respondError maps error kinds to HTTP statuses and writes the standard
// failure envelope.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errs.IsInvalidInput(err):
		status = http.StatusBadRequest
	case errs.IsNotFound(err):
		status = http.StatusNotFound
	case errs.IsTimeout(err):
		status = http.StatusGatewayTimeout
	case errs.IsConnectionFailed(err):
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		s.log.With().Err(err).Logger().Error("request failed")
	}
	s.respondJSON(w, status, map[string]any{"ok": false, "error": err.Error()})
}
