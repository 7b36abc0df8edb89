package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"cineverse/services/scheduler"
)

type taskScheduler interface {
	GetTaskStatus() []scheduler.TaskState
	RunTaskNow(ctx context.Context, taskID string) (scheduler.TaskState, error)
}

var _ taskScheduler = (*scheduler.Service)(nil)

// ScheduledTasksHandler exposes the maintenance scheduler.
type ScheduledTasksHandler struct {
	schedulerService taskScheduler
}

func NewScheduledTasksHandler(schedulerService taskScheduler) *ScheduledTasksHandler {
	return &ScheduledTasksHandler{schedulerService: schedulerService}
}

// ListTasks returns all scheduled tasks with current status
// GET /api/debug/tasks
func (h *ScheduledTasksHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"tasks": h.schedulerService.GetTaskStatus()})
}

// RunTask runs a task immediately and returns its new status
// POST /api/debug/tasks/{taskID}/run
func (h *ScheduledTasksHandler) RunTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["taskID"]
	state, err := h.schedulerService.RunTaskNow(r.Context(), taskID)
	switch {
	case errors.Is(err, scheduler.ErrTaskNotFound):
		writeJSONError(w, http.StatusNotFound, "Task not found")
		return
	case errors.Is(err, scheduler.ErrTaskAlreadyRunning):
		writeJSONError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, state)
}
