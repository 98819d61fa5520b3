package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/tagmatch/internal/api/middleware"
	"github.com/mcoot/tagmatch/internal/api/response"
	"github.com/mcoot/tagmatch/internal/services/registry"
	"github.com/mcoot/tagmatch/internal/services/relay"
)

// LobbyHandler exposes the relay and matchmaking registry to clients
type LobbyHandler struct {
	relay    relay.Service
	registry registry.Service
}

// NewLobbyHandler creates a new lobby handler
func NewLobbyHandler(relaySvc relay.Service, registrySvc registry.Service) *LobbyHandler {
	return &LobbyHandler{
		relay:    relaySvc,
		registry: registrySvc,
	}
}

// JoinAllocation handles GET /api/v1/relay/allocations/join/{code}
func (h *LobbyHandler) JoinAllocation(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	alloc, err := h.relay.JoinAllocation(r.Context(), code)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.Allocation{
		AllocationID:   alloc.ID,
		Endpoint:       alloc.Endpoint,
		MaxConnections: alloc.MaxConnections,
	})
}

// ListEntries handles GET /api/v1/registry/entries
func (h *LobbyHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.registry.ListEntries(r.Context(), middleware.MustGetAuthID(r.Context()))
	if err != nil {
		WriteError(w, err)
		return
	}

	resp := response.EntryList{Entries: make([]response.Entry, len(entries))}
	for i, e := range entries {
		resp.Entries[i] = response.EntryFromModel(e)
	}
	response.JSON(w, http.StatusOK, resp)
}

// JoinEntry handles POST /api/v1/registry/entries/{id}/join.
// Members see the entry's join code in the response.
func (h *LobbyHandler) JoinEntry(w http.ResponseWriter, r *http.Request) {
	entryID := mux.Vars(r)["id"]

	entry, err := h.registry.AddMember(r.Context(), entryID, middleware.MustGetAuthID(r.Context()))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.EntryFromModel(entry))
}
