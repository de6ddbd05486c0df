package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hugh/dealdesk/internal/analysis"
	"github.com/hugh/dealdesk/internal/api/dto"
	"github.com/hugh/dealdesk/internal/api/middleware"
)

type AnalysisHandler struct {
	analysis *analysis.Service
	logger   *slog.Logger
}

func NewAnalysisHandler(analysisService *analysis.Service, logger *slog.Logger) *AnalysisHandler {
	return &AnalysisHandler{analysis: analysisService, logger: logger}
}

// Calculate evaluates inputs without saving them.
func (h *AnalysisHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	var in analysis.Inputs
	if !decodeJSON(w, r, &in) {
		return
	}

	results, err := h.analysis.Evaluate(in)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.CalculateResponse{Inputs: in, Results: results})
}

func (h *AnalysisHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.SaveAnalysisRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Normalize()
	if !validate(w, req.Validate()) {
		return
	}

	saved, err := h.analysis.Create(r.Context(), middleware.GetUserID(r.Context()), analysis.SaveInput{
		Name:            req.Name,
		PropertyAddress: req.PropertyAddress,
		Inputs:          req.Inputs,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (h *AnalysisHandler) List(w http.ResponseWriter, r *http.Request) {
	p := pagination(r)

	items, total, err := h.analysis.List(r.Context(), middleware.GetUserID(r.Context()), p.Offset(), p.PerPage)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewPaginatedResponse(items, total, p))
}

func (h *AnalysisHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	saved, err := h.analysis.Get(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *AnalysisHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.analysis.Delete(r.Context(), middleware.GetUserID(r.Context()), id); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Analysis deleted"})
}

// Export returns a signed download link, or the CSV itself when no object
// store is configured.
func (h *AnalysisHandler) Export(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	export, err := h.analysis.Export(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	if !export.Inline() {
		writeJSON(w, http.StatusOK, export)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Data)
}
