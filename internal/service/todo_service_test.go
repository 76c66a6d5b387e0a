package service_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/2ao1-1/todo-backend/internal/cache"
	"github.com/2ao1-1/todo-backend/internal/images"
	"github.com/2ao1-1/todo-backend/internal/repo/repotest"
	"github.com/2ao1-1/todo-backend/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeImageStore struct {
	mu         sync.Mutex
	uploads    int
	destroyed  []string
	uploadErr  error
	destroyErr error
}

func (f *fakeImageStore) Upload(ctx context.Context, r io.Reader, filename string) (images.Uploaded, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return images.Uploaded{}, f.uploadErr
	}
	f.uploads++
	return images.Uploaded{URL: "https://img.example/" + filename, PublicID: "img-" + filename}, nil
}

func (f *fakeImageStore) Destroy(ctx context.Context, publicID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyErr != nil {
		return f.destroyErr
	}
	f.destroyed = append(f.destroyed, publicID)
	return nil
}

func (f *fakeImageStore) destroyedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.destroyed...)
}

func newService(img images.Store) (*service.TodoService, *repotest.MemoryTodoRepo) {
	r := repotest.NewMemoryTodoRepo()
	return service.NewTodoService(r, nil, img), r
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
func boolPtr(v bool) *bool    { return &v }

func TestCreateAssignsSequentialIDs(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		todo, err := svc.Create(ctx, 1, "groceries", "", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, want, todo.UserSequentialID)
	}

	// another user starts at 1 again
	todo, err := svc.Create(ctx, 2, "groceries", "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, todo.UserSequentialID)
}

func TestCreateSequentialIDsConcurrent(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	const n = 20
	seqs := make(chan int, n)
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			todo, err := svc.Create(ctx, 1, "concurrent todo", "", nil, nil)
			if err != nil {
				errs <- err
				return
			}
			seqs <- todo.UserSequentialID
		}()
	}
	wg.Wait()
	close(seqs)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	seen := map[int]bool{}
	for seq := range seqs {
		assert.False(t, seen[seq], "duplicate sequential id %d", seq)
		assert.GreaterOrEqual(t, seq, 1)
		assert.LessOrEqual(t, seq, n)
		seen[seq] = true
	}
	assert.Len(t, seen, n)
}

func TestCreateRetriesOnSequentialConflict(t *testing.T) {
	svc, r := newService(nil)
	ctx := context.Background()

	r.FailCreates = 2
	todo, err := svc.Create(ctx, 1, "retry me", "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, todo.UserSequentialID)

	r.FailCreates = 10
	_, err = svc.Create(ctx, 1, "never lands", "", nil, nil)
	require.Error(t, err)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, "ab", "", nil, nil)
	assert.ErrorIs(t, err, service.ErrTitleLength)

	_, err = svc.Create(ctx, 1, "   a   ", "", nil, nil)
	assert.ErrorIs(t, err, service.ErrTitleLength, "title is trimmed before validation")

	_, err = svc.Create(ctx, 1, "valid title", "", []service.TaskInput{{Text: "x"}}, nil)
	assert.ErrorIs(t, err, service.ErrTaskTextLength)

	_, err = svc.Create(ctx, 1, "valid title", "", []service.TaskInput{{Text: "ok task", Order: intPtr(-1)}}, nil)
	assert.ErrorIs(t, err, service.ErrNegativeOrder)
}

func TestCreateInitialTaskOrder(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	todo, err := svc.Create(ctx, 1, "with tasks", "", []service.TaskInput{
		{Text: "first"},
		{Text: "third", Order: intPtr(7)},
		{Text: "second"},
	}, nil)
	require.NoError(t, err)
	require.Len(t, todo.Tasks, 3)

	// order defaults to the array index unless supplied explicitly
	byText := map[string]int{}
	for _, task := range todo.Tasks {
		byText[task.Text] = task.Order
	}
	assert.Equal(t, 0, byText["first"])
	assert.Equal(t, 7, byText["third"])
	assert.Equal(t, 2, byText["second"])
}

func TestCreateWithImage(t *testing.T) {
	img := &fakeImageStore{}
	svc, _ := newService(img)
	ctx := context.Background()

	todo, err := svc.Create(ctx, 1, "with image", "", nil,
		&service.ImageUpload{Reader: bytes.NewReader([]byte("png")), Filename: "cover.png"})
	require.NoError(t, err)
	require.NotNil(t, todo.ImageURL)
	require.NotNil(t, todo.ImagePublicID)
	assert.Equal(t, "https://img.example/cover.png", *todo.ImageURL)
	assert.Equal(t, "img-cover.png", *todo.ImagePublicID)

	img.mu.Lock()
	assert.Equal(t, 1, img.uploads)
	img.mu.Unlock()
}

func TestCreateImageUploadFailure(t *testing.T) {
	img := &fakeImageStore{uploadErr: errors.New("boom")}
	svc, _ := newService(img)

	_, err := svc.Create(context.Background(), 1, "with image", "", nil,
		&service.ImageUpload{Reader: bytes.NewReader(nil), Filename: "cover.png"})
	assert.ErrorIs(t, err, service.ErrImageStore)
}

func TestCreateFailureReleasesUploadedImage(t *testing.T) {
	img := &fakeImageStore{}
	svc, r := newService(img)

	r.FailCreates = 10
	_, err := svc.Create(context.Background(), 1, "never lands", "", nil,
		&service.ImageUpload{Reader: bytes.NewReader(nil), Filename: "orphan.png"})
	require.Error(t, err)

	assert.Eventually(t, func() bool {
		ids := img.destroyedIDs()
		return len(ids) == 1 && ids[0] == "img-orphan.png"
	}, time.Second, 10*time.Millisecond, "image uploaded for a failed create is released")
}

func TestCreateImageWithUploadDisabled(t *testing.T) {
	svc, _ := newService(nil)

	_, err := svc.Create(context.Background(), 1, "with image", "", nil,
		&service.ImageUpload{Reader: bytes.NewReader(nil), Filename: "cover.png"})
	assert.ErrorIs(t, err, service.ErrImageStore)
}

func TestGetDistinguishesNotFoundFromNotOwner(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	todo, err := svc.Create(ctx, 1, "mine alone", "", nil, nil)
	require.NoError(t, err)

	_, err = svc.Get(ctx, 1, todo.ID)
	assert.NoError(t, err)

	_, err = svc.Get(ctx, 2, todo.ID)
	assert.ErrorIs(t, err, service.ErrNotOwner)

	_, err = svc.Get(ctx, 1, 9999)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestUpdateOwnershipTaxonomy(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	todo, err := svc.Create(ctx, 1, "mine alone", "", nil, nil)
	require.NoError(t, err)

	_, err = svc.Update(ctx, 2, todo.ID, service.TodoPatch{Title: strPtr("stolen")})
	assert.ErrorIs(t, err, service.ErrNotOwner)

	_, err = svc.Update(ctx, 1, 9999, service.TodoPatch{Title: strPtr("ghost")})
	assert.ErrorIs(t, err, service.ErrNotFound)

	err = svc.Delete(ctx, 2, todo.ID)
	assert.ErrorIs(t, err, service.ErrNotOwner)

	err = svc.Delete(ctx, 1, 9999)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestUpdateAppliesOnlySuppliedFields(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	todo, err := svc.Create(ctx, 1, "original title", "sun", nil, nil)
	require.NoError(t, err)

	updated, err := svc.Update(ctx, 1, todo.ID, service.TodoPatch{Title: strPtr("new title")})
	require.NoError(t, err)
	assert.Equal(t, "new title", updated.Title)
	assert.Equal(t, "sun", updated.Icon)
	assert.False(t, updated.Completed)

	updated, err = svc.Update(ctx, 1, todo.ID, service.TodoPatch{Completed: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, "new title", updated.Title)
	assert.True(t, updated.Completed)
}

func TestUpdateImageReplacementReleasesOld(t *testing.T) {
	img := &fakeImageStore{}
	svc, _ := newService(img)
	ctx := context.Background()

	todo, err := svc.Create(ctx, 1, "with image", "", nil,
		&service.ImageUpload{Reader: bytes.NewReader(nil), Filename: "old.png"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, 1, todo.ID, service.TodoPatch{
		Image: &service.ImagePatch{Upload: &service.ImageUpload{Reader: bytes.NewReader(nil), Filename: "new.png"}},
	})
	require.NoError(t, err)
	require.NotNil(t, updated.ImageURL)
	assert.Equal(t, "https://img.example/new.png", *updated.ImageURL)

	assert.Eventually(t, func() bool {
		ids := img.destroyedIDs()
		return len(ids) == 1 && ids[0] == "img-old.png"
	}, time.Second, 10*time.Millisecond, "old image should be released in the background")
}

func TestUpdateImageRemoval(t *testing.T) {
	img := &fakeImageStore{}
	svc, _ := newService(img)
	ctx := context.Background()

	todo, err := svc.Create(ctx, 1, "with image", "", nil,
		&service.ImageUpload{Reader: bytes.NewReader(nil), Filename: "gone.png"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, 1, todo.ID, service.TodoPatch{Image: &service.ImagePatch{Remove: true}})
	require.NoError(t, err)
	assert.Nil(t, updated.ImageURL)
	assert.Nil(t, updated.ImagePublicID)

	assert.Eventually(t, func() bool {
		return len(img.destroyedIDs()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestImageReleaseFailureDoesNotAbortUpdate(t *testing.T) {
	img := &fakeImageStore{destroyErr: errors.New("cloud down")}
	svc, _ := newService(img)
	ctx := context.Background()

	todo, err := svc.Create(ctx, 1, "with image", "", nil,
		&service.ImageUpload{Reader: bytes.NewReader(nil), Filename: "stuck.png"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, 1, todo.ID, service.TodoPatch{Image: &service.ImagePatch{Remove: true}})
	require.NoError(t, err, "release failure is best-effort, never fatal")
	assert.Nil(t, updated.ImageURL)
}

func TestDeleteCascadesTasksAndReleasesImage(t *testing.T) {
	img := &fakeImageStore{}
	svc, r := newService(img)
	ctx := context.Background()

	todo, err := svc.Create(ctx, 1, "doomed", "", []service.TaskInput{
		{Text: "task one"}, {Text: "task two"},
	}, &service.ImageUpload{Reader: bytes.NewReader(nil), Filename: "doomed.png"})
	require.NoError(t, err)
	require.Equal(t, 2, r.TaskCount(todo.ID))

	require.NoError(t, svc.Delete(ctx, 1, todo.ID))

	assert.Equal(t, 0, r.TaskCount(todo.ID), "no orphaned task rows remain")
	_, err = svc.Get(ctx, 1, todo.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.Eventually(t, func() bool {
		return len(img.destroyedIDs()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestAddTaskOrderAssignment(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	todo, err := svc.Create(ctx, 1, "ordering", "", nil, nil)
	require.NoError(t, err)

	withTask, err := svc.AddTask(ctx, 1, todo.ID, "first task", false)
	require.NoError(t, err)
	require.Len(t, withTask.Tasks, 1)
	assert.Equal(t, 0, withTask.Tasks[0].Order, "first task gets order 0")

	withTask, err = svc.AddTask(ctx, 1, todo.ID, "second task", false)
	require.NoError(t, err)
	require.Len(t, withTask.Tasks, 2)
	assert.Equal(t, 1, withTask.Tasks[1].Order, "appended at max+1")
}

func TestAddTaskSyncsParentCompleted(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	todo, err := svc.Create(ctx, 1, "almost done", "", []service.TaskInput{
		{Text: "done already", Completed: true},
	}, nil)
	require.NoError(t, err)

	// all tasks complete -> adding a complete task keeps/turns the parent on
	withTask, err := svc.AddTask(ctx, 1, todo.ID, "also done", true)
	require.NoError(t, err)
	assert.True(t, withTask.Completed)

	// adding an incomplete task flips it back off
	withTask, err = svc.AddTask(ctx, 1, todo.ID, "not done yet", false)
	require.NoError(t, err)
	assert.False(t, withTask.Completed)
}

func TestUpdateTaskSyncsParentCompleted(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	todo, err := svc.Create(ctx, 1, "two tasks", "", []service.TaskInput{
		{Text: "task a", Completed: true},
		{Text: "task b"},
	}, nil)
	require.NoError(t, err)
	require.Len(t, todo.Tasks, 2)
	assert.False(t, todo.Completed)

	task, err := svc.UpdateTask(ctx, 1, todo.ID, todo.Tasks[1].ID, service.TaskPatch{Completed: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, task.Completed)

	got, err := svc.Get(ctx, 1, todo.ID)
	require.NoError(t, err)
	assert.True(t, got.Completed, "last incomplete task completed -> parent completed")
}

func TestUpdateTaskPartialPatch(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	todo, err := svc.Create(ctx, 1, "patching", "", []service.TaskInput{{Text: "old text"}}, nil)
	require.NoError(t, err)

	task, err := svc.UpdateTask(ctx, 1, todo.ID, todo.Tasks[0].ID, service.TaskPatch{Order: intPtr(5)})
	require.NoError(t, err)
	assert.Equal(t, "old text", task.Text)
	assert.Equal(t, 5, task.Order)
	assert.False(t, task.Completed)
}

func TestDeleteLastIncompleteTaskFlipsParent(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	todo, err := svc.Create(ctx, 1, "flipping", "", []service.TaskInput{
		{Text: "task a", Completed: true},
		{Text: "task b"},
	}, nil)
	require.NoError(t, err)
	assert.False(t, todo.Completed)

	got, err := svc.DeleteTask(ctx, 1, todo.ID, todo.Tasks[1].ID)
	require.NoError(t, err)
	assert.True(t, got.Completed)
	assert.Len(t, got.Tasks, 1)
}

func TestDeleteOnlyTaskLeavesParentIncomplete(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	todo, err := svc.Create(ctx, 1, "single task", "", []service.TaskInput{
		{Text: "lonely", Completed: true},
	}, nil)
	require.NoError(t, err)

	got, err := svc.DeleteTask(ctx, 1, todo.ID, todo.Tasks[0].ID)
	require.NoError(t, err)
	assert.False(t, got.Completed, "a todo with no tasks is never completed")
	assert.Empty(t, got.Tasks)
}

func TestTaskTwoStageLookup(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	mine, err := svc.Create(ctx, 1, "my todo", "", []service.TaskInput{{Text: "my task"}}, nil)
	require.NoError(t, err)
	other, err := svc.Create(ctx, 1, "other todo", "", []service.TaskInput{{Text: "other task"}}, nil)
	require.NoError(t, err)

	// task exists but belongs to a different todo
	_, err = svc.UpdateTask(ctx, 1, mine.ID, other.Tasks[0].ID, service.TaskPatch{Completed: boolPtr(true)})
	assert.ErrorIs(t, err, service.ErrNotFound)

	// todo belongs to a different user
	_, err = svc.UpdateTask(ctx, 2, mine.ID, mine.Tasks[0].ID, service.TaskPatch{Completed: boolPtr(true)})
	assert.ErrorIs(t, err, service.ErrNotOwner)

	_, err = svc.DeleteTask(ctx, 1, mine.ID, 9999)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestListOrdering(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, "first created", "", nil, nil)
	require.NoError(t, err)
	_, err = svc.Create(ctx, 1, "second created", "", []service.TaskInput{
		{Text: "task c", Order: intPtr(2)},
		{Text: "task a", Order: intPtr(0)},
		{Text: "task b", Order: intPtr(1)},
	}, nil)
	require.NoError(t, err)

	list, err := svc.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)

	// newest sequential number first
	assert.Equal(t, "second created", list[0].Title)
	assert.Equal(t, 2, list[0].UserSequentialID)
	assert.Equal(t, "first created", list[1].Title)

	// tasks ascending by order
	require.Len(t, list[0].Tasks, 3)
	assert.Equal(t, "task a", list[0].Tasks[0].Text)
	assert.Equal(t, "task b", list[0].Tasks[1].Text)
	assert.Equal(t, "task c", list[0].Tasks[2].Text)
}

func TestListCachesEmptyResult(t *testing.T) {
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := repotest.NewMemoryTodoRepo()
	svc := service.NewTodoService(r, cache.NewTodoCache(rdb, time.Minute), nil)
	ctx := context.Background()

	list, err := svc.List(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = svc.List(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, 1, r.ListCalls, "empty list is served from cache on the second read")
}

func TestListScopedToUser(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, "user one todo", "", nil, nil)
	require.NoError(t, err)
	_, err = svc.Create(ctx, 2, "user two todo", "", nil, nil)
	require.NoError(t, err)

	list, err := svc.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "user one todo", list[0].Title)
}
