package handlers

import (
	"log/slog"
	"net/http"

	"github.com/hugh/dealdesk/internal/api/dto"
	"github.com/hugh/dealdesk/internal/api/middleware"
	"github.com/hugh/dealdesk/internal/team"
)

type TeamHandler struct {
	team   *team.Service
	logger *slog.Logger
}

func NewTeamHandler(teamService *team.Service, logger *slog.Logger) *TeamHandler {
	return &TeamHandler{team: teamService, logger: logger}
}

func (h *TeamHandler) Invite(w http.ResponseWriter, r *http.Request) {
	var req dto.InviteRequest
	if !decodeJSON(w, r, &req) || !validate(w, req.Validate()) {
		return
	}

	inv, err := h.team.Invite(r.Context(), middleware.GetUserID(r.Context()), req.Email)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *TeamHandler) ListInvitations(w http.ResponseWriter, r *http.Request) {
	invs, err := h.team.ListInvitations(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, invs)
}

func (h *TeamHandler) ListReceived(w http.ResponseWriter, r *http.Request) {
	invs, err := h.team.ListReceived(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, invs)
}

func (h *TeamHandler) Accept(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	member, err := h.team.Accept(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (h *TeamHandler) Decline(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	inv, err := h.team.Decline(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *TeamHandler) Rescind(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	inv, err := h.team.Rescind(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *TeamHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.team.ListMembers(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *TeamHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	memberID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.team.RemoveMember(r.Context(), middleware.GetUserID(r.Context()), memberID); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Member removed"})
}

func (h *TeamHandler) ListMemberships(w http.ResponseWriter, r *http.Request) {
	teams, err := h.team.ListTeams(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

func (h *TeamHandler) Leave(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := uuidParam(w, r, "ownerID")
	if !ok {
		return
	}

	if err := h.team.Leave(r.Context(), middleware.GetUserID(r.Context()), ownerID); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Left team"})
}
