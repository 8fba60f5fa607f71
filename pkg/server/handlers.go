package server

import (
	"net/http"

	"github.com/policyprobe/policyprobe/pkg/catalog"
	"github.com/policyprobe/policyprobe/pkg/engine"
	"github.com/policyprobe/policyprobe/pkg/session"
)

type createSessionRequest struct {
	UserName string `json:"user_name"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !s.decode(w, r, &req) {
		return
	}

	created, err := s.sessions.Create(r.Context(), req.UserName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*session.Session{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	got, err := s.sessions.Get(r.Context(), r.PathValue("session_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, got)
}

type updateSessionStatusRequest struct {
	Status session.Status `json:"status"`
}

func (s *Server) handleUpdateSessionStatus(w http.ResponseWriter, r *http.Request) {
	var req updateSessionStatusRequest
	if !s.decode(w, r, &req) {
		return
	}

	updated, err := s.sessions.UpdateStatus(r.Context(), r.PathValue("session_id"), req.Status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

// startRunRequest carries the run parameters. The tokens ride in the request
// body only; they are handed to the engine and never persisted or logged.
type startRunRequest struct {
	SessionID         string `json:"session_id,omitempty"`
	Owner             string `json:"owner"`
	Category          string `json:"category,omitempty"`
	ProductID         string `json:"product_id,omitempty"`
	PlanID            string `json:"plan_id,omitempty"`
	TargetEnvironment string `json:"target_environment,omitempty"`
	AdminToken        string `json:"admin_token,omitempty"`
	CustomerToken     string `json:"customer_token,omitempty"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if !s.decode(w, r, &req) {
		return
	}

	if req.SessionID != "" {
		if _, err := s.sessions.Get(r.Context(), req.SessionID); err != nil {
			s.writeError(w, err)
			return
		}
	}

	run, err := s.orchestrator.StartRun(r.Context(), engine.StartRunRequest{
		Owner:     req.Owner,
		SessionID: req.SessionID,
		Selection: catalog.Selection{
			Category:  req.Category,
			ProductID: req.ProductID,
			PlanID:    req.PlanID,
		},
		TargetEnvironment: req.TargetEnvironment,
		Tokens: engine.Tokens{
			Admin:    req.AdminToken,
			Customer: req.CustomerToken,
		},
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	if req.SessionID != "" {
		if _, err := s.sessions.AttachRun(r.Context(), req.SessionID, run.ID); err != nil {
			s.logger.WithRunID(run.ID).WithError(err).Warn("failed to attach run to session")
		}
	}

	s.writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.orchestrator.ListRuns(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if runs == nil {
		runs = []*engine.Run{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"total": len(runs),
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.orchestrator.GetRun(r.Context(), r.PathValue("run_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunProgress(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")

	run, err := s.orchestrator.GetRun(r.Context(), runID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	combinations, err := s.orchestrator.ListCombinations(r.Context(), runID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"run":          run,
		"combinations": combinations,
	})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	result, err := s.orchestrator.GetCombination(r.Context(), r.PathValue("run_id"), r.PathValue("execution_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetComparison(w http.ResponseWriter, r *http.Request) {
	executionID := r.PathValue("execution_id")

	result, err := s.orchestrator.GetCombination(r.Context(), r.PathValue("run_id"), executionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if result.Comparison == nil {
		s.writeError(w, engine.NewStorageError("comparison not available yet", nil).
			WithCode(engine.ErrCodeNotFound).WithExecution(executionID))
		return
	}
	s.writeJSON(w, http.StatusOK, result.Comparison)
}

func (s *Server) handleGetCatalog(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.catalog.Config())
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"categories": s.catalog.Categories(),
	})
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	category := r.PathValue("category")

	products, err := s.catalog.Products(category)
	if err != nil {
		s.writeError(w, engine.NewConfigError("unknown category", err).WithCode(engine.ErrCodeNotFound))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"category": category,
		"products": products,
	})
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	category := r.PathValue("category")
	productID := r.PathValue("product_id")

	plans, err := s.catalog.Plans(category, productID)
	if err != nil {
		s.writeError(w, engine.NewConfigError("unknown category or product", err).WithCode(engine.ErrCodeNotFound))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"category":   category,
		"product_id": productID,
		"plans":      plans,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
