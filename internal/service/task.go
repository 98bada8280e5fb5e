package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/capitalize-ai/assistant-engine/internal/apperr"
	"github.com/capitalize-ai/assistant-engine/internal/model"
	"github.com/capitalize-ai/assistant-engine/internal/store"
	"github.com/capitalize-ai/assistant-engine/pkg/logger"
)

const (
	resourceTask = "task"

	maxTaskTitle = 500
	maxTaskNotes = 5000
)

// TaskService manages tasks.
type TaskService struct {
	tasks   store.TaskRepo
	gate    *Gate
	journal Journal
	log     *logger.Logger
	now     Clock
}

// NewTaskService creates a TaskService.
func NewTaskService(tasks store.TaskRepo, gate *Gate, journal Journal, log *logger.Logger) *TaskService {
	if journal == nil {
		journal = NopJournal{}
	}
	return &TaskService{
		tasks:   tasks,
		gate:    gate,
		journal: journal,
		log:     log.With("service", "TaskService"),
		now:     time.Now,
	}
}

// Get returns one task.
func (s *TaskService) Get(ctx context.Context, id uint) (*model.Task, error) {
	task, err := s.tasks.Get(ctx, id)
	return lookup(task, err, fmt.Sprintf("Task %d not found", id))
}

// List returns pending tasks, plus completed ones when includeCompleted.
func (s *TaskService) List(ctx context.Context, includeCompleted bool) ([]model.Task, error) {
	filter := store.TaskFilter{Status: model.TaskPending}
	if includeCompleted {
		filter.Status = ""
	}
	tasks, err := s.tasks.List(ctx, filter)
	if err != nil {
		return nil, storageErr(err)
	}
	return tasks, nil
}

// Pending returns tasks not yet completed.
func (s *TaskService) Pending(ctx context.Context) ([]model.Task, error) {
	return s.List(ctx, false)
}

// Overdue returns pending tasks whose due date has passed.
func (s *TaskService) Overdue(ctx context.Context) ([]model.Task, error) {
	now := s.now()
	tasks, err := s.tasks.List(ctx, store.TaskFilter{Status: model.TaskPending, DueBefore: &now})
	if err != nil {
		return nil, storageErr(err)
	}
	return tasks, nil
}

// DueSoon returns pending tasks due within the given window from now.
func (s *TaskService) DueSoon(ctx context.Context, within time.Duration) ([]model.Task, error) {
	now := s.now()
	until := now.Add(within)
	tasks, err := s.tasks.List(ctx, store.TaskFilter{Status: model.TaskPending, DueAfter: &now, DueBefore: &until})
	if err != nil {
		return nil, storageErr(err)
	}
	return tasks, nil
}

// Create validates and stores a new task.
func (s *TaskService) Create(ctx context.Context, req model.CreateTaskRequest) *model.ActionResult {
	title := strings.TrimSpace(req.Title)
	if err := validateTask(title, req.Notes, req.Priority); err != nil {
		return s.done(ctx, "create", 0, model.ActionFailed(resourceTask, err))
	}

	task := &model.Task{
		Title:    title,
		Notes:    req.Notes,
		Priority: model.DefaultTaskPriority,
		Status:   model.TaskPending,
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
	}
	if req.DueDate != nil {
		due := req.DueDate.UTC()
		task.DueDate = &due
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return s.done(ctx, "create", 0, model.ActionFailed(resourceTask, storageErr(err)))
	}

	msg := fmt.Sprintf("Created task '%s'", task.Title)
	if task.DueDate != nil {
		msg += fmt.Sprintf(" due %s", task.DueDate.Format("2006-01-02"))
	}
	return s.done(ctx, "create", task.ID, model.NewAction(model.ActionCreated, resourceTask, msg, map[string]any{"task": task}))
}

// Update applies a partial update. Completion is not changed here.
func (s *TaskService) Update(ctx context.Context, id uint, req model.UpdateTaskRequest) *model.ActionResult {
	task, err := s.Get(ctx, id)
	if err != nil {
		return s.done(ctx, "update", id, model.ActionFailed(resourceTask, err))
	}

	title := task.Title
	if req.Title != nil {
		title = strings.TrimSpace(*req.Title)
	}
	if err := validateTask(title, req.Notes, req.Priority); err != nil {
		return s.done(ctx, "update", id, model.ActionFailed(resourceTask, err))
	}

	task.Title = title
	if req.Notes != nil {
		task.Notes = req.Notes
	}
	if req.DueDate != nil {
		due := req.DueDate.UTC()
		task.DueDate = &due
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
	}

	if err := s.tasks.Save(ctx, task); err != nil {
		return s.done(ctx, "update", id, model.ActionFailed(resourceTask, storageErr(err)))
	}
	return s.done(ctx, "update", id, model.NewAction(model.ActionUpdated, resourceTask,
		fmt.Sprintf("Updated task '%s'", task.Title), map[string]any{"task": task}))
}

// Complete marks a task completed once confirmed.
func (s *TaskService) Complete(ctx context.Context, id uint, confirmed bool) *model.ActionResult {
	return Guard(ctx, s.gate, GuardedOp[model.Task]{
		Resource:  resourceTask,
		Operation: "complete",
		ID:        id,
		Load:      func(ctx context.Context) (*model.Task, error) { return s.Get(ctx, id) },
		Terminal: func(t *model.Task) string {
			if t.Status == model.TaskCompleted {
				return fmt.Sprintf("Task '%s' is already completed", t.Title)
			}
			return ""
		},
		Preview: func(t *model.Task) (string, map[string]any) {
			return fmt.Sprintf("Mark '%s' as completed?", t.Title),
				map[string]any{"id": t.ID, "action": "complete", "title": t.Title}
		},
		Execute: func(ctx context.Context, t *model.Task) *model.ActionResult {
			now := s.now().UTC()
			t.Status = model.TaskCompleted
			t.CompletedAt = &now
			if err := s.tasks.Save(ctx, t); err != nil {
				return model.ActionFailed(resourceTask, storageErr(err))
			}
			return model.NewAction(model.ActionCompleted, resourceTask,
				fmt.Sprintf("Completed task '%s'", t.Title), map[string]any{"task": t})
		},
	}, confirmed)
}

// Reopen returns a completed task to pending.
func (s *TaskService) Reopen(ctx context.Context, id uint) *model.ActionResult {
	task, err := s.Get(ctx, id)
	if err != nil {
		return s.done(ctx, "reopen", id, model.ActionFailed(resourceTask, err))
	}
	if task.Status != model.TaskCompleted {
		return s.done(ctx, "reopen", id, model.ActionFailed(resourceTask,
			apperr.AlreadyTerminal("Task '%s' is not completed", task.Title)))
	}

	task.Status = model.TaskPending
	task.CompletedAt = nil
	if err := s.tasks.Save(ctx, task); err != nil {
		return s.done(ctx, "reopen", id, model.ActionFailed(resourceTask, storageErr(err)))
	}
	return s.done(ctx, "reopen", id, model.NewAction(model.ActionUpdated, resourceTask,
		fmt.Sprintf("Reopened task '%s'", task.Title), map[string]any{"task": task}))
}

// Delete removes a task once confirmed.
func (s *TaskService) Delete(ctx context.Context, id uint, confirmed bool) *model.ActionResult {
	return Guard(ctx, s.gate, GuardedOp[model.Task]{
		Resource:  resourceTask,
		Operation: "delete",
		ID:        id,
		Load:      func(ctx context.Context) (*model.Task, error) { return s.Get(ctx, id) },
		Preview: func(t *model.Task) (string, map[string]any) {
			return fmt.Sprintf("Are you sure you want to delete task '%s'? This cannot be undone.", t.Title),
				map[string]any{"id": t.ID, "action": "delete", "title": t.Title}
		},
		Execute: func(ctx context.Context, t *model.Task) *model.ActionResult {
			if err := s.tasks.Delete(ctx, t.ID); err != nil {
				return model.ActionFailed(resourceTask, storageErr(err))
			}
			return model.NewAction(model.ActionDeleted, resourceTask,
				fmt.Sprintf("Deleted task '%s'", t.Title), map[string]any{"id": t.ID, "title": t.Title})
		},
	}, confirmed)
}

func (s *TaskService) done(ctx context.Context, op string, id uint, r *model.ActionResult) *model.ActionResult {
	recordAction(ctx, s.journal, s.log, op, id, r)
	return r
}

func validateTask(title string, notes *string, priority *int) error {
	if title == "" {
		return apperr.Validation("task title is required")
	}
	if len([]rune(title)) > maxTaskTitle {
		return apperr.Validation("task title exceeds %d characters", maxTaskTitle)
	}
	if notes != nil && len([]rune(*notes)) > maxTaskNotes {
		return apperr.Validation("task notes exceed %d characters", maxTaskNotes)
	}
	if priority != nil && (*priority < 1 || *priority > 5) {
		return apperr.Validation("priority must be between 1 and 5")
	}
	return nil
}
