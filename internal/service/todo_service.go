package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/2ao1-1/todo-backend/internal/cache"
	dom "github.com/2ao1-1/todo-backend/internal/domain"
	"github.com/2ao1-1/todo-backend/internal/images"
	"github.com/2ao1-1/todo-backend/internal/repo"
	"github.com/2ao1-1/todo-backend/internal/utils"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/singleflight"
)

// createRetries bounds the sequential-id retry loop: two concurrent creates
// for the same user can compute the same next number, the unique constraint
// rejects one, and it re-runs with a fresh MAX.
const createRetries = 3

// releaseTimeout bounds the best-effort image delete so a slow store can
// never hold up anything.
const releaseTimeout = 10 * time.Second

// TaskInput is one task supplied with a todo create. Order defaults to the
// position in the input slice unless set explicitly.
type TaskInput struct {
	Text      string
	Completed bool
	Order     *int
}

// ImageUpload is an image payload for create/update.
type ImageUpload struct {
	Reader   io.Reader
	Filename string
}

// ImagePatch describes the image part of a todo update: either a new upload
// or an explicit removal.
type ImagePatch struct {
	Upload *ImageUpload
	Remove bool
}

// TodoPatch carries a partial todo update; nil fields are left untouched.
type TodoPatch struct {
	Title     *string
	Icon      *string
	Completed *bool
	Image     *ImagePatch
}

// TaskPatch carries a partial task update; nil fields are left untouched.
type TaskPatch struct {
	Text      *string
	Completed *bool
	Order     *int
}

// TodoService orchestrates todo and task use cases: ownership checks,
// sequential numbering, derived completed-state sync, and the image
// attachment lifecycle. If c is nil, caching is disabled; if img is nil,
// image upload is disabled.
type TodoService struct {
	repo   repo.TodoRepo
	cache  *cache.TodoCache
	images images.Store
	sf     singleflight.Group
}

func NewTodoService(r repo.TodoRepo, c *cache.TodoCache, img images.Store) *TodoService {
	return &TodoService{repo: r, cache: c, images: img}
}

// Create persists a todo with its initial tasks and optional image.
// The per-user sequential number is assigned by the repo under a unique
// constraint; on collision the insert is retried with a fresh number.
func (s *TodoService) Create(ctx context.Context, userID int64, title, icon string, tasks []TaskInput, image *ImageUpload) (dom.Todo, error) {
	title = strings.TrimSpace(title)
	if err := validateTitle(title); err != nil {
		return dom.Todo{}, err
	}
	rows := make([]dom.Task, len(tasks))
	for i, in := range tasks {
		text := strings.TrimSpace(in.Text)
		if err := validateTaskText(text); err != nil {
			return dom.Todo{}, err
		}
		order := i
		if in.Order != nil {
			if *in.Order < 0 {
				return dom.Todo{}, ErrNegativeOrder
			}
			order = *in.Order
		}
		rows[i] = dom.Task{Text: text, Completed: in.Completed, Order: order}
	}

	todo := dom.Todo{UserID: userID, Title: title, Icon: icon}
	if image != nil {
		up, err := s.uploadImage(ctx, image)
		if err != nil {
			return dom.Todo{}, err
		}
		todo.ImageURL = &up.URL
		todo.ImagePublicID = &up.PublicID
	}

	var created dom.Todo
	var err error
	for attempt := 0; attempt < createRetries; attempt++ {
		created, err = s.repo.Create(ctx, todo, rows)
		if err == nil {
			break
		}
		if !utils.IsPGUniqueViolationOn(err, "todos_user_seq_unique") {
			s.releaseUnstored(todo)
			return dom.Todo{}, err
		}
	}
	if err != nil {
		s.releaseUnstored(todo)
		return dom.Todo{}, fmt.Errorf("assign sequential id: %w", err)
	}
	s.invalidateCache(ctx, userID)
	return created, nil
}

// List returns the user's todos, newest sequential number first, tasks in
// display order. Served from the per-user cache when possible.
func (s *TodoService) List(ctx context.Context, userID int64) ([]dom.Todo, error) {
	if s.cache != nil {
		key := "list:" + strconv.FormatInt(userID, 10)
		v, err, _ := s.sf.Do(key, func() (interface{}, error) {
			if list, ok, err := s.cache.GetList(ctx, userID); err == nil && ok {
				return list, nil
			}
			list, err := s.repo.ListByUser(ctx, userID)
			if err != nil {
				return nil, err
			}
			_ = s.cache.SetList(ctx, userID, list)
			return list, nil
		})
		if err != nil {
			return nil, err
		}
		return v.([]dom.Todo), nil
	}
	return s.repo.ListByUser(ctx, userID)
}

// Get returns one todo with tasks. ErrNotFound when no such id,
// ErrNotOwner when it belongs to someone else.
func (s *TodoService) Get(ctx context.Context, userID, id int64) (dom.Todo, error) {
	return s.getOwned(ctx, userID, id)
}

// Update applies a partial patch. A new image replaces (and best-effort
// releases) the previous one; an explicit removal clears both the URL and
// the storage key.
func (s *TodoService) Update(ctx context.Context, userID, id int64, patch TodoPatch) (dom.Todo, error) {
	existing, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return dom.Todo{}, err
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if err := validateTitle(title); err != nil {
			return dom.Todo{}, err
		}
		existing.Title = title
	}
	if patch.Icon != nil {
		existing.Icon = *patch.Icon
	}
	if patch.Completed != nil {
		existing.Completed = *patch.Completed
	}
	if patch.Image != nil {
		switch {
		case patch.Image.Upload != nil:
			up, err := s.uploadImage(ctx, patch.Image.Upload)
			if err != nil {
				return dom.Todo{}, err
			}
			if existing.ImagePublicID != nil {
				s.releaseImage(*existing.ImagePublicID)
			}
			existing.ImageURL = &up.URL
			existing.ImagePublicID = &up.PublicID
		case patch.Image.Remove:
			if existing.ImagePublicID != nil {
				s.releaseImage(*existing.ImagePublicID)
			}
			existing.ImageURL = nil
			existing.ImagePublicID = nil
		}
	}

	updated, err := s.repo.Update(ctx, existing)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.Todo{}, ErrNotFound
		}
		return dom.Todo{}, err
	}
	s.invalidateCache(ctx, userID)
	return updated, nil
}

// Delete removes the todo and, via the cascade, all of its tasks. Any
// attached image is released best-effort.
func (s *TodoService) Delete(ctx context.Context, userID, id int64) error {
	existing, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return err
	}
	if existing.ImagePublicID != nil {
		s.releaseImage(*existing.ImagePublicID)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	s.invalidateCache(ctx, userID)
	return nil
}

// AddTask appends a task at the end of the display order and re-derives the
// parent completed flag (an already-completed task added to an otherwise
// all-completed todo flips it on).
func (s *TodoService) AddTask(ctx context.Context, userID, todoID int64, text string, completed bool) (dom.Todo, error) {
	todo, err := s.getOwned(ctx, userID, todoID)
	if err != nil {
		return dom.Todo{}, err
	}
	text = strings.TrimSpace(text)
	if err := validateTaskText(text); err != nil {
		return dom.Todo{}, err
	}
	if _, err := s.repo.AddTask(ctx, todoID, text, completed); err != nil {
		return dom.Todo{}, err
	}
	todo.Tasks, err = s.repo.ListTasks(ctx, todoID)
	if err != nil {
		return dom.Todo{}, err
	}
	if err := s.syncCompleted(ctx, &todo); err != nil {
		return dom.Todo{}, err
	}
	s.invalidateCache(ctx, userID)
	return todo, nil
}

// UpdateTask patches a task after the two-stage check (todo belongs to the
// user, task belongs to the todo) and re-derives the parent completed flag.
func (s *TodoService) UpdateTask(ctx context.Context, userID, todoID, taskID int64, patch TaskPatch) (dom.Task, error) {
	todo, err := s.getOwned(ctx, userID, todoID)
	if err != nil {
		return dom.Task{}, err
	}
	task, err := s.repo.GetTask(ctx, todoID, taskID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.Task{}, ErrNotFound
		}
		return dom.Task{}, err
	}
	if patch.Text != nil {
		text := strings.TrimSpace(*patch.Text)
		if err := validateTaskText(text); err != nil {
			return dom.Task{}, err
		}
		task.Text = text
	}
	if patch.Completed != nil {
		task.Completed = *patch.Completed
	}
	if patch.Order != nil {
		if *patch.Order < 0 {
			return dom.Task{}, ErrNegativeOrder
		}
		task.Order = *patch.Order
	}
	updated, err := s.repo.UpdateTask(ctx, task)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.Task{}, ErrNotFound
		}
		return dom.Task{}, err
	}
	todo.Tasks, err = s.repo.ListTasks(ctx, todoID)
	if err != nil {
		return dom.Task{}, err
	}
	if err := s.syncCompleted(ctx, &todo); err != nil {
		return dom.Task{}, err
	}
	s.invalidateCache(ctx, userID)
	return updated, nil
}

// DeleteTask removes a task after the two-stage check and re-derives the
// parent completed flag (deleting the last incomplete task flips it on).
func (s *TodoService) DeleteTask(ctx context.Context, userID, todoID, taskID int64) (dom.Todo, error) {
	todo, err := s.getOwned(ctx, userID, todoID)
	if err != nil {
		return dom.Todo{}, err
	}
	if _, err := s.repo.GetTask(ctx, todoID, taskID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.Todo{}, ErrNotFound
		}
		return dom.Todo{}, err
	}
	if err := s.repo.DeleteTask(ctx, taskID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.Todo{}, ErrNotFound
		}
		return dom.Todo{}, err
	}
	todo.Tasks, err = s.repo.ListTasks(ctx, todoID)
	if err != nil {
		return dom.Todo{}, err
	}
	if err := s.syncCompleted(ctx, &todo); err != nil {
		return dom.Todo{}, err
	}
	s.invalidateCache(ctx, userID)
	return todo, nil
}

// getOwned loads the todo and checks ownership. Existence is checked before
// ownership so the two stay distinguishable.
func (s *TodoService) getOwned(ctx context.Context, userID, id int64) (dom.Todo, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.Todo{}, ErrNotFound
		}
		return dom.Todo{}, err
	}
	if t.UserID != userID {
		return dom.Todo{}, ErrNotOwner
	}
	return t, nil
}

// syncCompleted persists the derived completed flag only when it changed
// from the stored value.
func (s *TodoService) syncCompleted(ctx context.Context, t *dom.Todo) error {
	all := dom.AllTasksCompleted(t.Tasks)
	if t.Completed == all {
		return nil
	}
	if err := s.repo.SetCompleted(ctx, t.ID, all); err != nil {
		return err
	}
	t.Completed = all
	return nil
}

func (s *TodoService) uploadImage(ctx context.Context, img *ImageUpload) (images.Uploaded, error) {
	if s.images == nil {
		return images.Uploaded{}, fmt.Errorf("%w: upload disabled", ErrImageStore)
	}
	up, err := s.images.Upload(ctx, img.Reader, img.Filename)
	if err != nil {
		return images.Uploaded{}, fmt.Errorf("%w: %v", ErrImageStore, err)
	}
	return up, nil
}

// releaseImage deletes a stored image in the background. Failures are
// logged, never propagated: a dead storage key must not block the mutation
// that orphaned it.
func (s *TodoService) releaseImage(publicID string) {
	if s.images == nil {
		return
	}
	store := s.images
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := store.Destroy(ctx, publicID); err != nil {
			log.Printf("image release failed for %s: %v", publicID, err)
		}
	}()
}

// releaseUnstored cleans up an image uploaded for a todo that never made it
// into the database, so the failed insert does not orphan it in the store.
func (s *TodoService) releaseUnstored(t dom.Todo) {
	if t.ImagePublicID != nil {
		s.releaseImage(*t.ImagePublicID)
	}
}

func (s *TodoService) invalidateCache(ctx context.Context, userID int64) {
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, userID)
	}
}

func validateTitle(title string) error {
	if n := len([]rune(title)); n < 3 || n > 100 {
		return ErrTitleLength
	}
	return nil
}

func validateTaskText(text string) error {
	if n := len([]rune(text)); n < 2 || n > 255 {
		return ErrTaskTextLength
	}
	return nil
}
