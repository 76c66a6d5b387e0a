// Package repotest provides in-memory implementations of the repo interfaces
// for tests. They mimic the SQL layer's contract: pgx.ErrNoRows on misses and
// pgconn unique-violation errors with the constraint names the migrations
// declare.
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	dom "github.com/2ao1-1/todo-backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

// MemoryUserRepo implements repo.UserRepo in memory.
type MemoryUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]dom.User
}

func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: map[int64]dom.User{}}
}

func (r *MemoryUserRepo) Create(ctx context.Context, name, email, passwordHash string) (dom.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return dom.User{}, uniqueViolation("users_email_key")
		}
	}
	r.nextID++
	now := time.Now()
	u := dom.User{ID: r.nextID, Name: name, Email: email, PasswordHash: passwordHash, CreatedAt: now, UpdatedAt: now}
	r.users[u.ID] = u
	return u, nil
}

func (r *MemoryUserRepo) GetByEmail(ctx context.Context, email string) (dom.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return dom.User{}, pgx.ErrNoRows
}

func (r *MemoryUserRepo) GetByID(ctx context.Context, id int64) (dom.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return dom.User{}, pgx.ErrNoRows
	}
	return u, nil
}

// MemoryTodoRepo implements repo.TodoRepo in memory.
// FailCreates makes the next N Create calls fail with the sequential-id
// unique violation, to exercise the caller's retry loop.
type MemoryTodoRepo struct {
	mu         sync.Mutex
	nextTodoID int64
	nextTaskID int64
	todos      map[int64]dom.Todo // stored without Tasks
	tasks      map[int64]dom.Task

	FailCreates int
	ListCalls   int
}

func NewMemoryTodoRepo() *MemoryTodoRepo {
	return &MemoryTodoRepo{todos: map[int64]dom.Todo{}, tasks: map[int64]dom.Task{}}
}

func (r *MemoryTodoRepo) Create(ctx context.Context, t dom.Todo, tasks []dom.Task) (dom.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailCreates > 0 {
		r.FailCreates--
		return dom.Todo{}, uniqueViolation("todos_user_seq_unique")
	}
	maxSeq := 0
	for _, existing := range r.todos {
		if existing.UserID == t.UserID && existing.UserSequentialID > maxSeq {
			maxSeq = existing.UserSequentialID
		}
	}
	r.nextTodoID++
	now := time.Now()
	t.ID = r.nextTodoID
	t.UserSequentialID = maxSeq + 1
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Tasks = nil
	r.todos[t.ID] = t

	out := t
	for _, task := range tasks {
		r.nextTaskID++
		task.ID = r.nextTaskID
		task.TodoID = t.ID
		task.CreatedAt = now
		task.UpdatedAt = now
		r.tasks[task.ID] = task
		out.Tasks = append(out.Tasks, task)
	}
	return out, nil
}

func (r *MemoryTodoRepo) ListByUser(ctx context.Context, userID int64) ([]dom.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ListCalls++
	var list []dom.Todo
	for _, t := range r.todos {
		if t.UserID == userID {
			t.Tasks = r.tasksOf(t.ID)
			list = append(list, t)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].UserSequentialID > list[j].UserSequentialID
	})
	return list, nil
}

func (r *MemoryTodoRepo) GetByID(ctx context.Context, id int64) (dom.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.todos[id]
	if !ok {
		return dom.Todo{}, pgx.ErrNoRows
	}
	t.Tasks = r.tasksOf(id)
	return t, nil
}

func (r *MemoryTodoRepo) Update(ctx context.Context, t dom.Todo) (dom.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.todos[t.ID]
	if !ok {
		return dom.Todo{}, pgx.ErrNoRows
	}
	existing.Title = t.Title
	existing.Icon = t.Icon
	existing.Completed = t.Completed
	existing.ImageURL = t.ImageURL
	existing.ImagePublicID = t.ImagePublicID
	existing.UpdatedAt = time.Now()
	r.todos[t.ID] = existing
	existing.Tasks = r.tasksOf(t.ID)
	return existing, nil
}

func (r *MemoryTodoRepo) SetCompleted(ctx context.Context, id int64, completed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.todos[id]
	if !ok {
		return pgx.ErrNoRows
	}
	t.Completed = completed
	t.UpdatedAt = time.Now()
	r.todos[id] = t
	return nil
}

func (r *MemoryTodoRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.todos[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.todos, id)
	// ON DELETE CASCADE
	for taskID, task := range r.tasks {
		if task.TodoID == id {
			delete(r.tasks, taskID)
		}
	}
	return nil
}

func (r *MemoryTodoRepo) AddTask(ctx context.Context, todoID int64, text string, completed bool) (dom.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.todos[todoID]; !ok {
		return dom.Task{}, pgx.ErrNoRows
	}
	order := 0
	for _, task := range r.tasks {
		if task.TodoID == todoID && task.Order+1 > order {
			order = task.Order + 1
		}
	}
	r.nextTaskID++
	now := time.Now()
	t := dom.Task{ID: r.nextTaskID, TodoID: todoID, Text: text, Completed: completed, Order: order, CreatedAt: now, UpdatedAt: now}
	r.tasks[t.ID] = t
	return t, nil
}

func (r *MemoryTodoRepo) GetTask(ctx context.Context, todoID, taskID int64) (dom.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok || t.TodoID != todoID {
		return dom.Task{}, pgx.ErrNoRows
	}
	return t, nil
}

func (r *MemoryTodoRepo) UpdateTask(ctx context.Context, t dom.Task) (dom.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tasks[t.ID]
	if !ok {
		return dom.Task{}, pgx.ErrNoRows
	}
	existing.Text = t.Text
	existing.Completed = t.Completed
	existing.Order = t.Order
	existing.UpdatedAt = time.Now()
	r.tasks[t.ID] = existing
	return existing, nil
}

func (r *MemoryTodoRepo) DeleteTask(ctx context.Context, taskID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[taskID]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.tasks, taskID)
	return nil
}

func (r *MemoryTodoRepo) ListTasks(ctx context.Context, todoID int64) ([]dom.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasksOf(todoID), nil
}

// TaskCount reports how many task rows exist for the todo. Test helper for
// cascade assertions.
func (r *MemoryTodoRepo) TaskCount(todoID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasksOf(todoID))
}

func (r *MemoryTodoRepo) tasksOf(todoID int64) []dom.Task {
	var list []dom.Task
	for _, t := range r.tasks {
		if t.TodoID == todoID {
			list = append(list, t)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Order != list[j].Order {
			return list[i].Order < list[j].Order
		}
		return list[i].ID < list[j].ID
	})
	return list
}
