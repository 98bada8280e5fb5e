package model

import (
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
)

// DefaultTaskPriority applies when none is given. Priorities run 1 (highest) to 5.
const DefaultTaskPriority = 3

// Task is a to-do item.
type Task struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"size:500;not null" json:"title"`
	Notes       *string    `gorm:"type:text" json:"notes,omitempty"`
	DueDate     *time.Time `gorm:"index" json:"due_date,omitempty"`
	Priority    int        `gorm:"not null;default:3" json:"priority"`
	Status      TaskStatus `gorm:"size:20;not null;index;default:pending" json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CreateTaskRequest is the request to create a task.
type CreateTaskRequest struct {
	Title    string     `json:"title"`
	Notes    *string    `json:"notes,omitempty"`
	DueDate  *time.Time `json:"due_date,omitempty"`
	Priority *int       `json:"priority,omitempty"`
}

// UpdateTaskRequest is a partial task update.
type UpdateTaskRequest struct {
	Title    *string    `json:"title,omitempty"`
	Notes    *string    `json:"notes,omitempty"`
	DueDate  *time.Time `json:"due_date,omitempty"`
	Priority *int       `json:"priority,omitempty"`
}
