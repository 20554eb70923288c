package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/crmflow/internal/handoff"
	"github.com/pitabwire/crmflow/internal/workflow"
)

func handleDashboard(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := engine.GenerateDashboard(r.Context())
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, view)
	}
}

func handleWorkflowProgress(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := engine.GetWorkflowProgress(r.Context(), chi.URLParam(r, "workflowId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, view)
	}
}

func handleHandoffQueue(manager *handoff.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		queue, err := manager.GetHandoffQueue(r.Context())
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"data":        queue,
			"total_count": len(queue),
		})
	}
}

func handlePendingHandoffs(manager *handoff.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending := manager.PendingHandoffs(r.Context())
		WriteJSON(w, http.StatusOK, map[string]any{
			"data":        pending,
			"total_count": len(pending),
		})
	}
}

func handleWorkload(manager *handoff.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := manager.GetRoleWorkloadReport(r.Context())
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": report})
	}
}

func handleUserDashboard(manager *handoff.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dash, err := manager.GetUserDashboard(r.Context(), chi.URLParam(r, "userId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, dash)
	}
}
