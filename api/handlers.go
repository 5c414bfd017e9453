package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/DachengChen/paiViz/agent"
)

// statusClientClosedRequest is the nginx convention for a client that
// went away before the response; recorded in metrics, never delivered.
const statusClientClosedRequest = 499

type errorResponse struct {
	Error string `json:"error"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Turns     int       `json:"turns"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type columnResponse struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type vizResponse struct {
	Shape       string           `json:"shape"`
	Strategy    string           `json:"strategy"`
	LabelColumn int              `json:"label_column"`
	ValueColumn int              `json:"value_column"`
	Columns     []columnResponse `json:"columns"`
	Rows        [][]any          `json:"rows"`
	RowCount    int              `json:"row_count"`
	Truncated   bool             `json:"truncated"`
}

type turnResponse struct {
	Index       int              `json:"index"`
	Question    string           `json:"question"`
	SQL         string           `json:"sql,omitempty"`
	Viz         *vizResponse     `json:"visualization,omitempty"`
	Narrative   string           `json:"narrative,omitempty"`
	Suggestions []string         `json:"suggestions,omitempty"`
	Error       *agent.TurnError `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	ElapsedMS   int64            `json:"elapsed_ms"`
}

type tableResponse struct {
	Name     string           `json:"name"`
	RowCount int64            `json:"row_count"`
	Columns  []columnResponse `json:"columns"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"backend":  s.agent.Dataset().Backend(),
		"provider": s.agent.Provider(),
	})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	schema := s.agent.Dataset().Schema()
	out := make([]tableResponse, 0, len(schema.Tables))
	for _, t := range schema.Tables {
		tr := tableResponse{Name: t.Name, RowCount: t.RowCount}
		for _, c := range t.Columns {
			tr.Columns = append(tr.Columns, columnResponse{Name: c.Name, Type: c.Type})
		}
		out = append(out, tr)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": out})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.agent.Dataset().Reload(r.Context()); err != nil {
		s.log.Error("reload failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.handleSchema(w, r)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.agent.NewSession()
	s.sessions.add(sess)
	s.log.Info("session created", "session", sess.ID)
	writeJSON(w, http.StatusCreated, sessionResponse{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt(),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	live := s.sessions.sessions()
	sort.Slice(live, func(i, j int) bool {
		return live[i].CreatedAt().Before(live[j].CreatedAt())
	})

	out := make([]sessionResponse, 0, len(live))
	for _, sess := range live {
		out = append(out, sessionResponse{
			ID:        sess.ID,
			CreatedAt: sess.CreatedAt(),
			Turns:     sess.Len(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	ms, ok := s.sessions.get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	turns := ms.sess.Turns()
	out := make([]turnResponse, 0, len(turns))
	for _, t := range turns {
		out = append(out, toTurnResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":    ms.sess.ID,
		"turns": out,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if !s.sessions.delete(id) {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	s.log.Info("session deleted", "session", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ms, ok := s.sessions.get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	if !ms.mu.TryLock() {
		writeError(w, http.StatusConflict, "a turn is already in flight for this session")
		return
	}
	defer ms.mu.Unlock()

	start := time.Now()
	turn, err := s.agent.Respond(r.Context(), ms.sess, req.Message)
	if err != nil {
		observeTurn("canceled", time.Since(start))
		writeError(w, statusClientClosedRequest, "turn canceled")
		return
	}

	outcome := "success"
	if turn.Err != nil {
		outcome = turn.Err.Kind
	}
	observeTurn(outcome, time.Since(start))

	writeJSON(w, http.StatusOK, toTurnResponse(turn))
}

func toTurnResponse(t agent.Turn) turnResponse {
	out := turnResponse{
		Index:       t.Index,
		Question:    t.Question,
		SQL:         t.SQL,
		Narrative:   t.Narrative,
		Suggestions: t.Suggestions,
		Error:       t.Err,
		CreatedAt:   t.CreatedAt,
		ElapsedMS:   t.Elapsed.Milliseconds(),
	}
	if t.Viz != nil {
		out.Viz = toVizResponse(t.Viz)
	}
	return out
}

func toVizResponse(v *agent.VisualizationSpec) *vizResponse {
	out := &vizResponse{
		Shape:       string(v.Shape),
		Strategy:    string(v.Strategy),
		LabelColumn: v.LabelColumn,
		ValueColumn: v.ValueColumn,
		RowCount:    v.Result.RowCount(),
		Truncated:   v.Result.Truncated,
		Rows:        v.Result.Rows,
	}
	for _, c := range v.Result.Columns {
		out.Columns = append(out.Columns, columnResponse{Name: c.Name, Type: string(c.Type)})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
