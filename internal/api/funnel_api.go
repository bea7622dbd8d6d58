package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/avalia-ganha/avalia/internal/app/games"
	"github.com/avalia-ganha/avalia/internal/app/session"
	"github.com/avalia-ganha/avalia/internal/domain"
)

// maxBody caps request bodies; every payload here is a handful of fields.
const maxBody = 64 << 10

// ─── Views ──────────────────────────────────────────────────────────────────

type sessionView struct {
	ID          string          `json:"id"`
	ProgressPct float64         `json:"progress_pct"`
	BalanceText string          `json:"balance_text"`
	Snapshot    domain.Snapshot `json:"snapshot"`
}

func viewOf(s *session.Session) sessionView {
	snap := s.Engine.Snapshot()
	return sessionView{
		ID:          s.ID,
		ProgressPct: snap.ProgressPct(),
		BalanceText: domain.FormatBRL(snap.Balance),
		Snapshot:    snap,
	}
}

// ─── Catalog & Offer ────────────────────────────────────────────────────────

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks": s.sessions.Catalog(),
	})
}

func (s *Server) handleOfferConfig(w http.ResponseWriter, r *http.Request) {
	h := s.sessions.Handoff()
	writeJSON(w, http.StatusOK, map[string]any{
		"environment": h.Environment(),
		"urls":        h.URLs(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	sum, err := s.reporter.Summary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"journal":  sum,
		"active":   s.sessions.Len(),
		"capacity": s.sessions.Capacity(),
	})
}

// ─── Sessions ───────────────────────────────────────────────────────────────

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Location", "/api/sessions/"+sess.ID)
	writeJSON(w, http.StatusCreated, viewOf(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type offerRequest struct {
	Plan string `json:"plan"`
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req offerRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := sess.Offer(req.Plan)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─── Task Completion ────────────────────────────────────────────────────────

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	sess, taskID, ok := s.task(w, r)
	if !ok {
		return
	}
	if err := sess.Watch(taskID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

type evaluateRequest struct {
	Approved *bool `json:"approved"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	sess, taskID, ok := s.task(w, r)
	if !ok {
		return
	}
	var req evaluateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Approved == nil {
		writeError(w, http.StatusBadRequest, "approved is required")
		return
	}
	award, err := sess.Evaluate(taskID, *req.Approved)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, award)
}

type completeRequest struct {
	Reward *decimal.Decimal `json:"reward,omitempty"`
}

// handleComplete is the generic completion route. Videos and apps complete
// as an approval with their base reward, so the watch gate still applies.
// Only game tasks accept a reward override.
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	sess, taskID, ok := s.task(w, r)
	if !ok {
		return
	}
	var req completeRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	task, err := sess.Engine.Task(taskID)
	if err != nil {
		writeErr(w, err)
		return
	}

	var award domain.Award
	switch {
	case task.Kind != domain.KindGame:
		if req.Reward != nil {
			writeError(w, http.StatusBadRequest, "reward override applies to game tasks only")
			return
		}
		award, err = sess.Evaluate(taskID, true)
	case req.Reward != nil:
		award, err = sess.Engine.CompleteTaskWithReward(taskID, *req.Reward)
	default:
		award, err = sess.Engine.CompleteTask(taskID)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, award)
}

type scoreRequest struct {
	Score *float64 `json:"score"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	sess, taskID, ok := s.task(w, r)
	if !ok {
		return
	}
	var req scoreRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Score == nil {
		writeError(w, http.StatusBadRequest, "score is required")
		return
	}
	award, err := sess.Engine.ReportScore(taskID, *req.Score)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, award)
}

// ─── Mini-experiences ───────────────────────────────────────────────────────

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	sess, taskID, ok := s.task(w, r)
	if !ok {
		return
	}
	v, err := sess.Video(taskID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v.State())
}

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	sess, taskID, ok := s.task(w, r)
	if !ok {
		return
	}
	g, err := sess.Game(taskID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g.State())
}

func (s *Server) handleGameAction(w http.ResponseWriter, r *http.Request) {
	sess, taskID, ok := s.task(w, r)
	if !ok {
		return
	}
	var args games.Args
	if !decodeOptional(w, r, &args) {
		return
	}
	if err := sess.GameAction(taskID, chi.URLParam(r, "action"), args); err != nil {
		writeErr(w, err)
		return
	}
	g, _ := sess.Game(taskID)
	writeJSON(w, http.StatusOK, g.State())
}

func (s *Server) handleClaimGame(w http.ResponseWriter, r *http.Request) {
	sess, taskID, ok := s.task(w, r)
	if !ok {
		return
	}
	award, err := sess.ClaimGame(taskID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, award)
}

func (s *Server) handleApp(w http.ResponseWriter, r *http.Request) {
	sess, taskID, ok := s.task(w, r)
	if !ok {
		return
	}
	a, err := sess.App(taskID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.State())
}

type appActionRequest struct {
	Item string `json:"item,omitempty"`
}

func (s *Server) handleAppAction(w http.ResponseWriter, r *http.Request) {
	sess, taskID, ok := s.task(w, r)
	if !ok {
		return
	}
	var req appActionRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	if err := sess.AppAction(taskID, chi.URLParam(r, "action"), req.Item); err != nil {
		writeErr(w, err)
		return
	}
	a, _ := sess.App(taskID)
	writeJSON(w, http.StatusOK, a.State())
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) task(w http.ResponseWriter, r *http.Request) (*session.Session, int, bool) {
	taskID, err := strconv.Atoi(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid task id %q", chi.URLParam(r, "taskID")))
		return nil, 0, false
	}
	sess, ok := s.session(w, r)
	if !ok {
		return nil, 0, false
	}
	return sess, taskID, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// decodeOptional accepts an empty body.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v)
	if err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
