package dto

import (
	"encoding/json"
	"strings"
	"time"
)

// ImageField parses imageUrl from an update body. A pointer to this type
// distinguishes "field absent" (nil pointer = leave the image alone) from
// "explicitly empty or null" (= remove the image).
type ImageField struct{ s *string }

func (f *ImageField) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.s = raw
	return nil
}

// Cleared reports whether the client asked for image removal.
func (f ImageField) Cleared() bool {
	return f.s == nil || strings.TrimSpace(*f.s) == ""
}

// TaskInput is one task inside a create-todo body. Order is optional and
// defaults to the array index.
type TaskInput struct {
	Text      string `json:"text" binding:"required,min=2,max=255"`
	Completed bool   `json:"completed"`
	Order     *int   `json:"order" binding:"omitempty,min=0"`
}

type CreateTodoRequest struct {
	Title string      `json:"title" binding:"required,min=3,max=100"`
	Icon  string      `json:"icon"`
	Tasks []TaskInput `json:"tasks" binding:"omitempty,dive"`
}

type UpdateTodoRequest struct {
	Title     *string     `json:"title" binding:"omitempty,min=3,max=100"`
	Icon      *string     `json:"icon"`
	Completed *bool       `json:"completed"`
	ImageURL  *ImageField `json:"imageUrl"` // nil = keep, empty/null = remove
}

type AddTaskRequest struct {
	Text      string `json:"text" binding:"required,min=2,max=255"`
	Completed bool   `json:"completed"`
}

type UpdateTaskRequest struct {
	Text      *string `json:"text" binding:"omitempty,min=2,max=255"`
	Completed *bool   `json:"completed"`
	Order     *int    `json:"order" binding:"omitempty,min=0"`
}

type TaskResponse struct {
	ID        int64     `json:"id"`
	TodoID    int64     `json:"todoId"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type TodoResponse struct {
	ID                   int64          `json:"id"`
	UserID               int64          `json:"userId"`
	UserSequentialID     int            `json:"userSequentialId"`
	Title                string         `json:"title"`
	Icon                 string         `json:"icon"`
	Completed            bool           `json:"completed"`
	ImageURL             *string        `json:"imageUrl"`
	Tasks                []TaskResponse `json:"tasks"`
	CompletionPercentage int            `json:"completionPercentage"`
	CreatedAt            time.Time      `json:"createdAt"`
	UpdatedAt            time.Time      `json:"updatedAt"`
}

type DeleteTodoResponse struct {
	Message string `json:"message"`
}
