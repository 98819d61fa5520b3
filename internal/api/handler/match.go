package handler

import (
	"encoding/json"
	"net/http"

	"github.com/mcoot/tagmatch/internal/api/middleware"
	"github.com/mcoot/tagmatch/internal/api/request"
	"github.com/mcoot/tagmatch/internal/api/response"
	"github.com/mcoot/tagmatch/internal/model"
	"github.com/mcoot/tagmatch/internal/services/host"
	"github.com/mcoot/tagmatch/internal/services/match"
)

// MatchHandler handles the hosted match endpoints
type MatchHandler struct {
	orchestrator *host.Orchestrator
}

// NewMatchHandler creates a new match handler
func NewMatchHandler(orchestrator *host.Orchestrator) *MatchHandler {
	return &MatchHandler{
		orchestrator: orchestrator,
	}
}

// Get handles GET /api/v1/match
func (h *MatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetAuthID(r.Context())

	resp := response.MatchState{
		State: string(h.orchestrator.State()),
	}
	if session := h.orchestrator.Session(); session != nil {
		hostIdentity := h.orchestrator.Host()
		resp.Host = hostIdentity.DisplayName()
		resp.Connections = session.ConnectionCount()
		snapshot := session.Snapshot()
		resp.Match = &snapshot
		if hostIdentity.AuthID == caller {
			info := h.orchestrator.Info()
			resp.Session = &info
		}
	}

	response.JSON(w, http.StatusOK, resp)
}

// Start handles POST /api/v1/match/start
func (h *MatchHandler) Start(w http.ResponseWriter, r *http.Request) {
	session, err := h.hostSession(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	if err := session.StartMatch(); err != nil {
		WriteError(w, err)
		return
	}

	snapshot := session.Snapshot()
	response.JSON(w, http.StatusOK, response.MatchState{
		State:       string(model.SessionRunning),
		Host:        h.orchestrator.Host().DisplayName(),
		Connections: session.ConnectionCount(),
		Match:       &snapshot,
	})
}

// Leaderboard handles GET /api/v1/match/leaderboard
func (h *MatchHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	session := h.orchestrator.Session()
	if session == nil {
		WriteError(w, model.ErrNoActiveSession)
		return
	}

	response.JSON(w, http.StatusOK, response.Leaderboard{Standings: session.Standings()})
}

// Contact handles POST /api/v1/match/contacts.
// Lets the host inject a contact as if initiator had touched target.
func (h *MatchHandler) Contact(w http.ResponseWriter, r *http.Request) {
	var req request.ContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}
	if req.InitiatorID == 0 || req.TargetID == 0 {
		WriteError(w, NewInvalidRequestError("initiator_id and target_id are required"))
		return
	}

	session, err := h.hostSession(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	transferred, err := session.Contact(model.ConnectionID(req.InitiatorID), model.ConnectionID(req.TargetID))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.ContactResult{Transferred: transferred})
}

// hostSession returns the running match when the caller is its host
func (h *MatchHandler) hostSession(r *http.Request) (*match.Session, error) {
	caller := middleware.MustGetAuthID(r.Context())

	session := h.orchestrator.Session()
	if session == nil {
		return nil, model.ErrNoActiveSession
	}
	if h.orchestrator.Host().AuthID != caller {
		return nil, model.ErrNotHost
	}
	return session, nil
}
