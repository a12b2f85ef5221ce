package serverapp

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"sqlmapper/internal/compiler"
	"sqlmapper/internal/config"
	"sqlmapper/internal/criteria"
	"sqlmapper/internal/dbexec"
	"sqlmapper/internal/dialect"
	"sqlmapper/internal/logging"
	"sqlmapper/internal/middleware"
	"sqlmapper/internal/observability"
	"sqlmapper/internal/pagination"
	"sqlmapper/internal/sqlfrag"
)

const maxRequestBody = 1 << 20

// api serves the statement catalog over HTTP.
type api struct {
	cfg      *config.Config
	logger   *logging.Logger
	catalogs *catalogStore
	rewriter *pagination.Rewriter
	dialect  dialect.Dialect
	db       *sql.DB
	metrics  *observability.MapperMetrics
}

type paramSummary struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Kind string `json:"kind"`
}

type statementSummary struct {
	ID         string `json:"id"`
	Namespace  string `json:"namespace"`
	Command    string `json:"command"`
	Entity     string `json:"entity,omitempty"`
	ResultType string `json:"result_type,omitempty"`
	Pageable   bool   `json:"pageable"`
	Custom     bool   `json:"custom"`
	MaxResults int    `json:"max_results,omitempty"`
}

type statementDetail struct {
	statementSummary
	Params   []paramSummary `json:"params"`
	Template string         `json:"template"`
	Script   string         `json:"script"`
}

func summarize(st *compiler.Statement) statementSummary {
	s := statementSummary{
		ID:         st.ID,
		Namespace:  st.Namespace(),
		Command:    st.Command.String(),
		ResultType: st.ResultType,
		Pageable:   st.Pageable(),
		Custom:     st.Custom,
		MaxResults: st.MaxResults,
	}
	if st.Entity != nil {
		s.Entity = st.Entity.Name
	}
	return s
}

func (h *api) listStatements(w http.ResponseWriter, r *http.Request) {
	statements := h.catalogs.Load().statements.Statements()
	out := make([]statementSummary, 0, len(statements))
	for _, st := range statements {
		out = append(out, summarize(st))
	}
	writeJSON(w, http.StatusOK, map[string]any{"statements": out})
}

func (h *api) getStatement(w http.ResponseWriter, r *http.Request) {
	st, ok := h.catalogs.Load().statements.Statement(r.PathValue("id"))
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "NOT_FOUND", "unknown statement: "+r.PathValue("id"))
		return
	}
	detail := statementDetail{
		statementSummary: summarize(st),
		Params:           []paramSummary{},
		Template:         st.Template(),
		Script:           st.Script(),
	}
	for _, p := range st.Method.Params {
		detail.Params = append(detail.Params, paramSummary{Name: p.Name, Type: p.Type, Kind: p.Kind.String()})
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *api) getMapper(w http.ResponseWriter, r *http.Request) {
	namespace := r.PathValue("namespace")
	statements := h.catalogs.Load().statements
	found := false
	for _, ns := range statements.Namespaces() {
		if ns == namespace {
			found = true
			break
		}
	}
	if !found {
		middleware.WriteError(w, http.StatusNotFound, "NOT_FOUND", "unknown mapper namespace: "+namespace)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	if err := statements.WriteMapper(w, namespace); err != nil {
		h.logger.Error("failed to write mapper document",
			slog.String("namespace", namespace),
			slog.String("error", err.Error()),
		)
	}
}

type paginateRequest struct {
	Statement string `json:"statement"`
	SQL       string `json:"sql"`
	Args      []any  `json:"args"`
	Offset    int64  `json:"offset"`
	Limit     int64  `json:"limit"`
}

type paginateResponse struct {
	Path     string `json:"path"`
	CountSQL string `json:"count_sql"`
	PageSQL  string `json:"page_sql"`
	Args     []any  `json:"args,omitempty"`
}

// paginate returns the count and page SQL for a compiled statement or a
// raw select without running them.
func (h *api) paginate(w http.ResponseWriter, r *http.Request) {
	var req paginateRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	page := criteria.Page{Offset: req.Offset, Limit: req.Limit}
	switch {
	case req.Statement != "" && req.SQL != "":
		middleware.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "statement and sql are mutually exclusive")
		return
	case req.Statement != "":
		res, binds, err := h.catalogs.Load().session.Explain(req.Statement, page, normalizeArgs(req.Args)...)
		if err != nil {
			h.writeStatementError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, paginateResponse{
			Path: res.Path.String(), CountSQL: res.CountSQL, PageSQL: res.PageSQL, Args: binds,
		})
	case req.SQL != "":
		res, err := h.rewriter.Rewrite(req.SQL, nil, page)
		if err == nil {
			res.CountSQL, err = h.dialect.Rebind(res.CountSQL)
		}
		if err == nil {
			res.PageSQL, err = h.dialect.Rebind(res.PageSQL)
		}
		if err != nil {
			h.writeStatementError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, paginateResponse{
			Path: res.Path.String(), CountSQL: res.CountSQL, PageSQL: res.PageSQL,
		})
	default:
		middleware.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "statement or sql is required")
	}
}

type queryRequest struct {
	Args   []any `json:"args"`
	Offset int64 `json:"offset"`
	Limit  int64 `json:"limit"`
}

type execResponse struct {
	RowsAffected int64  `json:"rows_affected"`
	LastInsertID *int64 `json:"last_insert_id,omitempty"`
	Args         []any  `json:"args"`
}

// query runs a statement. Selects with a limit, or whose method takes a
// page, return one page with a total; other selects are cut at max_rows.
func (h *api) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	c := h.catalogs.Load()
	st, ok := c.statements.Statement(id)
	if !ok {
		h.writeStatementError(w, r, fmt.Errorf("%w: %s", dbexec.ErrUnknownStatement, id))
		return
	}
	ctx := r.Context()
	if h.metrics != nil {
		defer h.metrics.StatementStarted(ctx)()
	}
	args := normalizeArgs(req.Args)

	if st.Command != compiler.Select {
		res, err := c.session.Exec(ctx, id, args...)
		if err != nil {
			h.writeStatementError(w, r, err)
			return
		}
		out := execResponse{Args: args}
		if out.RowsAffected, err = res.RowsAffected(); err != nil {
			out.RowsAffected = -1
		}
		if last, err := res.LastInsertId(); err == nil && last != 0 {
			out.LastInsertID = &last
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	limit := req.Limit
	if limit <= 0 && st.Method.HasPage() {
		limit = int64(h.cfg.Server.MaxRows)
	}
	if limit > 0 {
		page, err := c.session.QueryPage(ctx, id, criteria.Page{Offset: req.Offset, Limit: limit}, args...)
		if err != nil {
			h.writeStatementError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
		return
	}

	rows, err := c.session.Query(ctx, id, args...)
	if err != nil {
		h.writeStatementError(w, r, err)
		return
	}
	truncated := false
	if maxRows := h.cfg.Server.MaxRows; maxRows > 0 && len(rows) > maxRows {
		rows, truncated = rows[:maxRows], true
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows, "truncated": truncated})
}

func (h *api) reload(w http.ResponseWriter, r *http.Request) {
	c, err := h.catalogs.Reload(r.Context())
	if err != nil {
		middleware.WriteError(w, http.StatusUnprocessableEntity, "RELOAD_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"statements": c.statements.Len(),
		"namespaces": c.statements.Namespaces(),
		"loaded_at":  c.loadedAt.UTC().Format(time.RFC3339),
	})
}

func (h *api) health(w http.ResponseWriter, r *http.Request) {
	c := h.catalogs.Load()
	body := map[string]any{
		"status":     "ok",
		"dialect":    h.dialect.Name(),
		"statements": c.statements.Len(),
	}
	if h.db != nil {
		timeout := h.cfg.Server.HealthCheckTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			h.logger.Warn("health check failed", slog.String("error", err.Error()))
			body["status"] = "unavailable"
			body["error"] = "database unreachable"
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *api) writeStatementError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, dbexec.ErrUnknownStatement):
		middleware.WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, dbexec.ErrWrongCommand),
		errors.Is(err, pagination.ErrInvalidPage),
		errors.Is(err, compiler.ErrArgumentCount),
		errors.Is(err, compiler.ErrEmptyCollection),
		errors.Is(err, compiler.ErrUnknownSortProperty),
		errors.Is(err, sqlfrag.ErrMissingArgument),
		errors.Is(err, criteria.ErrRelationUpdate):
		middleware.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
	default:
		logging.FromContext(r.Context()).Error("statement failed", slog.String("error", err.Error()))
		middleware.WriteError(w, http.StatusInternalServerError, "STATEMENT_FAILED", err.Error())
	}
}

// decodeRequest reads a JSON body with numbers kept as json.Number so
// integral arguments survive as int64.
func decodeRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body: "+err.Error())
		return false
	}
	return true
}

func normalizeArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = normalizeJSON(a)
	}
	return out
}

// normalizeJSON converts json.Number values to int64 when integral and
// float64 otherwise, descending into objects and arrays.
func normalizeJSON(v any) any {
	switch v := v.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		f, err := v.Float64()
		if err != nil {
			return v.String()
		}
		return f
	case map[string]any:
		for k, e := range v {
			v[k] = normalizeJSON(e)
		}
		return v
	case []any:
		for i, e := range v {
			v[i] = normalizeJSON(e)
		}
		return v
	default:
		return v
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
