package repo

import (
	"context"

	dom "github.com/2ao1-1/todo-backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TodoRepo provides todo and task persistence. Lookups that match no row
// return pgx.ErrNoRows; the service layer maps it to its own sentinels.
type TodoRepo interface {
	Create(ctx context.Context, t dom.Todo, tasks []dom.Task) (dom.Todo, error)
	ListByUser(ctx context.Context, userID int64) ([]dom.Todo, error)
	GetByID(ctx context.Context, id int64) (dom.Todo, error)
	Update(ctx context.Context, t dom.Todo) (dom.Todo, error)
	SetCompleted(ctx context.Context, id int64, completed bool) error
	Delete(ctx context.Context, id int64) error

	AddTask(ctx context.Context, todoID int64, text string, completed bool) (dom.Task, error)
	GetTask(ctx context.Context, todoID, taskID int64) (dom.Task, error)
	UpdateTask(ctx context.Context, t dom.Task) (dom.Task, error)
	DeleteTask(ctx context.Context, taskID int64) error
	ListTasks(ctx context.Context, todoID int64) ([]dom.Task, error)
}

type PGTodoRepo struct {
	db *pgxpool.Pool
}

func NewPGTodoRepo(db *pgxpool.Pool) *PGTodoRepo {
	return &PGTodoRepo{db: db}
}

const todoColumns = `id, user_id, user_sequential_id, title, icon, completed, image_url, image_public_id, created_at, updated_at`
const taskColumns = `id, todo_id, text, completed, position, created_at, updated_at`

// Create inserts the todo and its initial tasks in one transaction.
// The per-user sequential number is assigned inside the INSERT; a concurrent
// create for the same user can still collide on the (user_id,
// user_sequential_id) unique constraint, which the caller retries.
func (r *PGTodoRepo) Create(ctx context.Context, t dom.Todo, tasks []dom.Task) (dom.Todo, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return dom.Todo{}, err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO todos (user_id, user_sequential_id, title, icon, image_url, image_public_id)
		VALUES ($1, (SELECT COALESCE(MAX(user_sequential_id), 0) + 1 FROM todos WHERE user_id = $1), $2, $3, $4, $5)
		RETURNING ` + todoColumns
	var out dom.Todo
	err = tx.QueryRow(ctx, query, t.UserID, t.Title, t.Icon, t.ImageURL, t.ImagePublicID).Scan(
		&out.ID, &out.UserID, &out.UserSequentialID, &out.Title, &out.Icon, &out.Completed,
		&out.ImageURL, &out.ImagePublicID, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return dom.Todo{}, err
	}

	for _, task := range tasks {
		var created dom.Task
		err = tx.QueryRow(ctx,
			`INSERT INTO tasks (todo_id, text, completed, position) VALUES ($1, $2, $3, $4) RETURNING `+taskColumns,
			out.ID, task.Text, task.Completed, task.Order,
		).Scan(&created.ID, &created.TodoID, &created.Text, &created.Completed, &created.Order,
			&created.CreatedAt, &created.UpdatedAt)
		if err != nil {
			return dom.Todo{}, err
		}
		out.Tasks = append(out.Tasks, created)
	}

	if err := tx.Commit(ctx); err != nil {
		return dom.Todo{}, err
	}
	return out, nil
}

// ListByUser returns the user's todos sorted by sequential number descending,
// each with its tasks sorted by position ascending.
func (r *PGTodoRepo) ListByUser(ctx context.Context, userID int64) ([]dom.Todo, error) {
	query := `SELECT ` + todoColumns + ` FROM todos WHERE user_id = $1 ORDER BY user_sequential_id DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []dom.Todo
	index := map[int64]int{}
	var ids []int64
	for rows.Next() {
		var t dom.Todo
		if err := rows.Scan(&t.ID, &t.UserID, &t.UserSequentialID, &t.Title, &t.Icon, &t.Completed,
			&t.ImageURL, &t.ImagePublicID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		index[t.ID] = len(list)
		ids = append(ids, t.ID)
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return list, nil
	}

	taskRows, err := r.db.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE todo_id = ANY($1) ORDER BY position ASC, id ASC`, ids)
	if err != nil {
		return nil, err
	}
	defer taskRows.Close()
	for taskRows.Next() {
		var task dom.Task
		if err := taskRows.Scan(&task.ID, &task.TodoID, &task.Text, &task.Completed, &task.Order,
			&task.CreatedAt, &task.UpdatedAt); err != nil {
			return nil, err
		}
		i := index[task.TodoID]
		list[i].Tasks = append(list[i].Tasks, task)
	}
	return list, taskRows.Err()
}

// GetByID returns the todo with its tasks, regardless of owner.
func (r *PGTodoRepo) GetByID(ctx context.Context, id int64) (dom.Todo, error) {
	var t dom.Todo
	err := r.db.QueryRow(ctx, `SELECT `+todoColumns+` FROM todos WHERE id = $1`, id).Scan(
		&t.ID, &t.UserID, &t.UserSequentialID, &t.Title, &t.Icon, &t.Completed,
		&t.ImageURL, &t.ImagePublicID, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return dom.Todo{}, err
	}
	t.Tasks, err = r.ListTasks(ctx, t.ID)
	return t, err
}

// Update persists the mutable todo fields and returns the fresh row with tasks.
func (r *PGTodoRepo) Update(ctx context.Context, t dom.Todo) (dom.Todo, error) {
	query := `
		UPDATE todos SET title = $2, icon = $3, completed = $4, image_url = $5, image_public_id = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + todoColumns
	var out dom.Todo
	err := r.db.QueryRow(ctx, query, t.ID, t.Title, t.Icon, t.Completed, t.ImageURL, t.ImagePublicID).Scan(
		&out.ID, &out.UserID, &out.UserSequentialID, &out.Title, &out.Icon, &out.Completed,
		&out.ImageURL, &out.ImagePublicID, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return dom.Todo{}, err
	}
	out.Tasks, err = r.ListTasks(ctx, out.ID)
	return out, err
}

// SetCompleted flips only the completed flag. Used when task mutations
// change the derived parent status.
func (r *PGTodoRepo) SetCompleted(ctx context.Context, id int64, completed bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE todos SET completed = $2, updated_at = NOW() WHERE id = $1`, id, completed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete removes the todo; tasks go with it via ON DELETE CASCADE.
func (r *PGTodoRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM todos WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// AddTask appends a task with position = max(existing) + 1, or 0 for the first.
func (r *PGTodoRepo) AddTask(ctx context.Context, todoID int64, text string, completed bool) (dom.Task, error) {
	query := `
		INSERT INTO tasks (todo_id, text, completed, position)
		VALUES ($1, $2, $3, (SELECT COALESCE(MAX(position) + 1, 0) FROM tasks WHERE todo_id = $1))
		RETURNING ` + taskColumns
	var t dom.Task
	err := r.db.QueryRow(ctx, query, todoID, text, completed).Scan(
		&t.ID, &t.TodoID, &t.Text, &t.Completed, &t.Order, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

// GetTask returns the task only if it belongs to the given todo.
func (r *PGTodoRepo) GetTask(ctx context.Context, todoID, taskID int64) (dom.Task, error) {
	var t dom.Task
	err := r.db.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND todo_id = $2`, taskID, todoID).Scan(
		&t.ID, &t.TodoID, &t.Text, &t.Completed, &t.Order, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

func (r *PGTodoRepo) UpdateTask(ctx context.Context, t dom.Task) (dom.Task, error) {
	query := `
		UPDATE tasks SET text = $2, completed = $3, position = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + taskColumns
	var out dom.Task
	err := r.db.QueryRow(ctx, query, t.ID, t.Text, t.Completed, t.Order).Scan(
		&out.ID, &out.TodoID, &out.Text, &out.Completed, &out.Order, &out.CreatedAt, &out.UpdatedAt,
	)
	return out, err
}

func (r *PGTodoRepo) DeleteTask(ctx context.Context, taskID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, taskID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListTasks returns the todo's tasks in display order.
func (r *PGTodoRepo) ListTasks(ctx context.Context, todoID int64) ([]dom.Task, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE todo_id = $1 ORDER BY position ASC, id ASC`, todoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []dom.Task
	for rows.Next() {
		var t dom.Task
		if err := rows.Scan(&t.ID, &t.TodoID, &t.Text, &t.Completed, &t.Order,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}
