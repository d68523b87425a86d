package api

import (
	"net/http"
	"slices"
	"strings"

	"github.com/sprite-ai/impactgate/internal/diff"
	"github.com/sprite-ai/impactgate/internal/gate"
	"github.com/sprite-ai/impactgate/internal/impact"
	"github.com/sprite-ai/impactgate/internal/model"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Analyze ---

// analyzeRequest is a ChangeInput with an optional unified diff whose files
// are added to the targets.
type analyzeRequest struct {
	model.ChangeInput
	Diff string `json:"diff,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	input := req.ChangeInput
	if req.Diff != "" {
		ds, err := diff.Parse(req.Diff)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		fromDiff := diff.Annotate(ds.ChangeInput(input.Description), ds.Scan())
		input.Description = fromDiff.Description
		for _, f := range fromDiff.TargetFiles {
			if !slices.Contains(input.TargetFiles, f) {
				input.TargetFiles = append(input.TargetFiles, f)
			}
		}
	}
	if strings.TrimSpace(input.Description) == "" && len(input.TargetFiles) == 0 && len(input.TargetModules) == 0 {
		s.writeError(w, http.StatusBadRequest, "description, diff or targets are required")
		return
	}
	if input.ChangeType != "" && !input.ChangeType.Valid() {
		s.writeError(w, http.StatusBadRequest, "unknown change_type: "+string(input.ChangeType))
		return
	}

	a, err := s.svc.Analyze(r.Context(), input)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

// --- Trigger ---

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req impact.TriggerInput
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.svc.ShouldAnalyze(req))
}

// --- Analyses ---

type analysisSummary struct {
	ID          string           `json:"id"`
	Description string           `json:"description"`
	Status      model.GateStatus `json:"status"`
	Blockers    int              `json:"blockers"`
	Warnings    int              `json:"warnings"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	all := s.svc.List()
	out := make([]analysisSummary, 0, len(all))
	for _, a := range all {
		out = append(out, analysisSummary{
			ID:          a.ID,
			Description: a.Input.Description,
			Status:      a.Gate.Status,
			Blockers:    len(a.Gate.Blockers),
			Warnings:    len(a.Gate.Warnings),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.Get(r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

// --- Gate ---

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req gate.ApprovalRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	a, err := s.svc.Approve(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, a.Gate)
}

type overrideResponse struct {
	Gate  model.ImplementationGate `json:"gate"`
	Audit model.GateAuditLog       `json:"audit"`
}

func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	var req gate.OverrideRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	a, log, err := s.svc.Override(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, overrideResponse{Gate: a.Gate, Audit: log})
}

type revokeRequest struct {
	Approver string `json:"approver"`
	Reason   string `json:"reason"`
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Approver == "" {
		s.writeError(w, http.StatusBadRequest, "approver is required")
		return
	}
	a, err := s.svc.Revoke(r.Context(), r.PathValue("id"), req.Approver, req.Reason)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, a.Gate)
}

type validationRequest struct {
	Status model.ValidationStatus `json:"status"`
	Result string                 `json:"result,omitempty"`
}

type validationResponse struct {
	Gate        model.ImplementationGate `json:"gate"`
	Validations []model.ValidationItem   `json:"validations"`
}

func (s *Server) handleValidation(w http.ResponseWriter, r *http.Request) {
	var req validationRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	a, err := s.svc.UpdateValidation(r.Context(), r.PathValue("id"), r.PathValue("vid"), req.Status, req.Result)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, validationResponse{Gate: a.Gate, Validations: a.Validations})
}

type mitigateResponse struct {
	Gate  model.ImplementationGate `json:"gate"`
	Risks []model.IdentifiedRisk   `json:"risks"`
}

func (s *Server) handleMitigate(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.MitigateRisk(r.Context(), r.PathValue("id"), r.PathValue("rid"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, mitigateResponse{Gate: a.Gate, Risks: a.Risks})
}
