package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/2ao1-1/todo-backend/internal/auth"
	dom "github.com/2ao1-1/todo-backend/internal/domain"
	"github.com/2ao1-1/todo-backend/internal/dto"
	"github.com/2ao1-1/todo-backend/internal/service"

	"github.com/gin-gonic/gin"
)

type TodoHandler struct {
	svc *service.TodoService
}

func NewTodoHandler(svc *service.TodoService) *TodoHandler {
	return &TodoHandler{svc: svc}
}

// Create godoc
// @Summary      Create a todo with optional initial tasks and image
// @Description  Accepts JSON, or multipart/form-data with fields title, icon, tasks (JSON array) and an image file.
// @Tags         todos
// @Accept       json
// @Accept       mpfd
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      dto.CreateTodoRequest  true  "Todo body"
// @Success      201   {object}  dto.TodoResponse
// @Failure      400   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /todos [post]
func (h *TodoHandler) Create(c *gin.Context) {
	userID := auth.UserIDFromContext(c)

	var (
		title, icon string
		tasks       []dto.TaskInput
		image       *service.ImageUpload
	)
	if c.ContentType() == "multipart/form-data" {
		title = c.PostForm("title")
		icon = c.PostForm("icon")
		if raw := c.PostForm("tasks"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "tasks must be a JSON array"})
				return
			}
		}
		file, err := c.FormFile("image")
		if err == nil && file != nil {
			f, err := file.Open()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable image"})
				return
			}
			defer f.Close()
			image = &service.ImageUpload{Reader: f, Filename: file.Filename}
		}
	} else {
		var req dto.CreateTodoRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		title, icon, tasks = req.Title, req.Icon, req.Tasks
	}

	todo, err := h.svc.Create(c.Request.Context(), userID, title, icon, toTaskInputs(tasks), image)
	if err != nil {
		respondTodoError(c, err)
		return
	}
	c.JSON(http.StatusCreated, todoToResponse(todo))
}

// List godoc
// @Summary      List the caller's todos
// @Tags         todos
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   dto.TodoResponse
// @Failure      500  {object}  map[string]string
// @Router       /todos [get]
func (h *TodoHandler) List(c *gin.Context) {
	userID := auth.UserIDFromContext(c)
	list, err := h.svc.List(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]dto.TodoResponse, len(list))
	for i := range list {
		out[i] = todoToResponse(list[i])
	}
	c.JSON(http.StatusOK, out)
}

// GetByID godoc
// @Summary      Get a todo by ID
// @Tags         todos
// @Produce      json
// @Security     BearerAuth
// @Param        todoId  path      int  true  "Todo ID"
// @Success      200     {object}  dto.TodoResponse
// @Failure      403     {object}  map[string]string
// @Failure      404     {object}  map[string]string
// @Router       /todos/{todoId} [get]
func (h *TodoHandler) GetByID(c *gin.Context) {
	userID := auth.UserIDFromContext(c)
	id, ok := parseID(c, "todoId")
	if !ok {
		return
	}
	todo, err := h.svc.Get(c.Request.Context(), userID, id)
	if err != nil {
		respondTodoError(c, err)
		return
	}
	c.JSON(http.StatusOK, todoToResponse(todo))
}

// Update godoc
// @Summary      Partially update a todo
// @Description  JSON body with optional title/icon/completed/imageUrl (empty imageUrl removes the image), or multipart with a replacement image file.
// @Tags         todos
// @Accept       json
// @Accept       mpfd
// @Produce      json
// @Security     BearerAuth
// @Param        todoId  path      int                    true  "Todo ID"
// @Param        body    body      dto.UpdateTodoRequest  true  "Partial update"
// @Success      200     {object}  dto.TodoResponse
// @Failure      400     {object}  map[string]string
// @Failure      403     {object}  map[string]string
// @Failure      404     {object}  map[string]string
// @Router       /todos/{todoId} [put]
func (h *TodoHandler) Update(c *gin.Context) {
	userID := auth.UserIDFromContext(c)
	id, ok := parseID(c, "todoId")
	if !ok {
		return
	}

	var patch service.TodoPatch
	if c.ContentType() == "multipart/form-data" {
		if v, present := c.GetPostForm("title"); present {
			patch.Title = &v
		}
		if v, present := c.GetPostForm("icon"); present {
			patch.Icon = &v
		}
		if v, present := c.GetPostForm("completed"); present {
			completed, err := strconv.ParseBool(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "completed must be a boolean"})
				return
			}
			patch.Completed = &completed
		}
		file, err := c.FormFile("image")
		if err == nil && file != nil {
			f, err := file.Open()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable image"})
				return
			}
			defer f.Close()
			patch.Image = &service.ImagePatch{Upload: &service.ImageUpload{Reader: f, Filename: file.Filename}}
		}
	} else {
		var req dto.UpdateTodoRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		patch.Title = req.Title
		patch.Icon = req.Icon
		patch.Completed = req.Completed
		if req.ImageURL != nil && req.ImageURL.Cleared() {
			patch.Image = &service.ImagePatch{Remove: true}
		}
	}

	todo, err := h.svc.Update(c.Request.Context(), userID, id, patch)
	if err != nil {
		respondTodoError(c, err)
		return
	}
	c.JSON(http.StatusOK, todoToResponse(todo))
}

// Delete godoc
// @Summary      Delete a todo and all of its tasks
// @Tags         todos
// @Produce      json
// @Security     BearerAuth
// @Param        todoId  path      int  true  "Todo ID"
// @Success      200     {object}  dto.DeleteTodoResponse
// @Failure      403     {object}  map[string]string
// @Failure      404     {object}  map[string]string
// @Router       /todos/{todoId} [delete]
func (h *TodoHandler) Delete(c *gin.Context) {
	userID := auth.UserIDFromContext(c)
	id, ok := parseID(c, "todoId")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), userID, id); err != nil {
		respondTodoError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.DeleteTodoResponse{Message: "Todo and associated tasks removed"})
}

// AddTask godoc
// @Summary      Add a task to a todo
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        todoId  path      int                 true  "Todo ID"
// @Param        body    body      dto.AddTaskRequest  true  "Task body"
// @Success      201     {object}  dto.TodoResponse
// @Failure      400     {object}  map[string]string
// @Failure      403     {object}  map[string]string
// @Failure      404     {object}  map[string]string
// @Router       /todos/{todoId}/tasks [post]
func (h *TodoHandler) AddTask(c *gin.Context) {
	userID := auth.UserIDFromContext(c)
	todoID, ok := parseID(c, "todoId")
	if !ok {
		return
	}
	var req dto.AddTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	todo, err := h.svc.AddTask(c.Request.Context(), userID, todoID, req.Text, req.Completed)
	if err != nil {
		respondTodoError(c, err)
		return
	}
	c.JSON(http.StatusCreated, todoToResponse(todo))
}

// UpdateTask godoc
// @Summary      Partially update a task
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        todoId  path      int                    true  "Todo ID"
// @Param        taskId  path      int                    true  "Task ID"
// @Param        body    body      dto.UpdateTaskRequest  true  "Partial update"
// @Success      200     {object}  dto.TaskResponse
// @Failure      400     {object}  map[string]string
// @Failure      403     {object}  map[string]string
// @Failure      404     {object}  map[string]string
// @Router       /todos/{todoId}/tasks/{taskId} [put]
func (h *TodoHandler) UpdateTask(c *gin.Context) {
	userID := auth.UserIDFromContext(c)
	todoID, ok := parseID(c, "todoId")
	if !ok {
		return
	}
	taskID, ok := parseID(c, "taskId")
	if !ok {
		return
	}
	var req dto.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := h.svc.UpdateTask(c.Request.Context(), userID, todoID, taskID, service.TaskPatch{
		Text:      req.Text,
		Completed: req.Completed,
		Order:     req.Order,
	})
	if err != nil {
		respondTodoError(c, err)
		return
	}
	c.JSON(http.StatusOK, taskToResponse(task))
}

// DeleteTask godoc
// @Summary      Delete a task
// @Tags         tasks
// @Produce      json
// @Security     BearerAuth
// @Param        todoId  path      int  true  "Todo ID"
// @Param        taskId  path      int  true  "Task ID"
// @Success      200     {object}  dto.TodoResponse
// @Failure      403     {object}  map[string]string
// @Failure      404     {object}  map[string]string
// @Router       /todos/{todoId}/tasks/{taskId} [delete]
func (h *TodoHandler) DeleteTask(c *gin.Context) {
	userID := auth.UserIDFromContext(c)
	todoID, ok := parseID(c, "todoId")
	if !ok {
		return
	}
	taskID, ok := parseID(c, "taskId")
	if !ok {
		return
	}
	todo, err := h.svc.DeleteTask(c.Request.Context(), userID, todoID, taskID)
	if err != nil {
		respondTodoError(c, err)
		return
	}
	c.JSON(http.StatusOK, todoToResponse(todo))
}

func parseID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func respondTodoError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized"})
	case service.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrImageStore):
		c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func toTaskInputs(tasks []dto.TaskInput) []service.TaskInput {
	out := make([]service.TaskInput, len(tasks))
	for i, t := range tasks {
		out[i] = service.TaskInput{Text: t.Text, Completed: t.Completed, Order: t.Order}
	}
	return out
}

func taskToResponse(t dom.Task) dto.TaskResponse {
	return dto.TaskResponse{
		ID:        t.ID,
		TodoID:    t.TodoID,
		Text:      t.Text,
		Completed: t.Completed,
		Order:     t.Order,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// todoToResponse computes the completion percentage on the way out; it is
// derived, never stored.
func todoToResponse(t dom.Todo) dto.TodoResponse {
	tasks := make([]dto.TaskResponse, len(t.Tasks))
	for i := range t.Tasks {
		tasks[i] = taskToResponse(t.Tasks[i])
	}
	return dto.TodoResponse{
		ID:                   t.ID,
		UserID:               t.UserID,
		UserSequentialID:     t.UserSequentialID,
		Title:                t.Title,
		Icon:                 t.Icon,
		Completed:            t.Completed,
		ImageURL:             t.ImageURL,
		Tasks:                tasks,
		CompletionPercentage: dom.CompletionPercentage(t.Tasks),
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}
}
