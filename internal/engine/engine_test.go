package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdeck/internal/cache"
	"taskdeck/internal/domain"
	"taskdeck/internal/engine"
	"taskdeck/internal/remote"
	"taskdeck/internal/testutil"
)

var fixedNow = time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	Engine   *engine.Engine
	Tasks    *testutil.FakeTable[domain.Task]
	Projects *testutil.FakeTable[domain.Project]
	Orders   *testutil.FakeOrders
	Ctx      context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	env := testEnv{
		Tasks:    testutil.NewFakeTasks(),
		Projects: testutil.NewFakeProjects(),
		Orders:   testutil.NewFakeOrders(),
		Ctx:      context.Background(),
	}
	env.Engine = engine.New(engine.Options{
		Owner:    "u1",
		Tasks:    env.Tasks,
		Projects: env.Projects,
		Orders:   env.Orders,
		Cache:    cache.NewMemory(),
		Now:      func() time.Time { return fixedNow },
	})
	t.Cleanup(env.Engine.Close)
	return env
}

func task(id, scope string, idx *int, created time.Time) domain.Task {
	t := domain.Task{ID: id, OwnerID: "u1", Title: "t" + id, Status: domain.StatusPending,
		OrderIndex: idx, CreatedAt: domain.FormatTime(created)}
	if scope != "" {
		s := scope
		t.ProjectID = &s
	}
	return t
}

func intp(v int) *int { return &v }

func taskIDs(ts []domain.Task) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}

func TestStrategies(t *testing.T) {
	assert.Equal(t, engine.Optimistic, engine.StrategyFor(engine.OpReorder))
	for _, op := range []engine.Op{engine.OpCreate, engine.OpUpdate, engine.OpDelete, engine.OpToggleArchive} {
		assert.Equal(t, engine.Pessimistic, engine.StrategyFor(op), op)
	}
}

func TestCreateAssignsProvisionalIndexPerScope(t *testing.T) {
	env := newTestEnv(t)
	env.Projects.Seed(domain.Project{ID: "p1", OwnerID: "u1", Name: "P1"})
	require.NoError(t, env.Engine.Load(env.Ctx))

	a, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "a"})
	require.NoError(t, err)
	b, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "b"})
	require.NoError(t, err)
	c, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "c", ProjectID: "p1"})
	require.NoError(t, err)

	assert.Equal(t, 1, *a.OrderIndex)
	assert.Equal(t, 2, *b.OrderIndex)
	assert.Equal(t, 1, *c.OrderIndex)
	assert.Len(t, env.Engine.Tasks.Rows(), 3)
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "  "})
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "title", verr.Field)

	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", StartDate: "2024-07-05", EndDate: "2024-07-01"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "end_date", verr.Field)

	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", ProjectID: "nope"})
	require.ErrorIs(t, err, remote.ErrNotFound)
}

func TestCreateFailureShowsNothing(t *testing.T) {
	env := newTestEnv(t)
	env.Tasks.InsertErr = errors.New("boom")
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "a"})
	require.Error(t, err)
	assert.Empty(t, env.Engine.Tasks.Rows())
}

func TestUpdateStampsCompletion(t *testing.T) {
	env := newTestEnv(t)
	env.Tasks.Seed(task("1", "", nil, fixedNow))
	require.NoError(t, env.Engine.Load(env.Ctx))

	done := domain.StatusCompleted
	got, err := env.Engine.UpdateTask(env.Ctx, "1", domain.TaskPatch{Status: &done})
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, domain.FormatTime(fixedNow), *got.CompletedAt)

	pending := domain.StatusPending
	got, err = env.Engine.UpdateTask(env.Ctx, "1", domain.TaskPatch{Status: &pending})
	require.NoError(t, err)
	assert.Nil(t, got.CompletedAt)

	stored, _ := env.Tasks.Row("1")
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestUpdateFailureLeavesMemory(t *testing.T) {
	env := newTestEnv(t)
	env.Tasks.Seed(task("1", "", nil, fixedNow))
	require.NoError(t, env.Engine.Load(env.Ctx))
	env.Tasks.UpdateErr = errors.New("timeout")

	title := "renamed"
	_, err := env.Engine.UpdateTask(env.Ctx, "1", domain.TaskPatch{Title: &title})
	require.Error(t, err)
	got, ok := env.Engine.Tasks.Get("1")
	require.True(t, ok)
	assert.Equal(t, "t1", got.Title)
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t)
	env.Tasks.Seed(task("1", "", nil, fixedNow), task("2", "", nil, fixedNow))
	require.NoError(t, env.Engine.Load(env.Ctx))

	require.NoError(t, env.Engine.DeleteTask(env.Ctx, "1"))
	assert.Equal(t, []string{"2"}, taskIDs(env.Engine.Tasks.Rows()))

	env.Tasks.DeleteErr = errors.New("denied")
	require.Error(t, env.Engine.DeleteTask(env.Ctx, "2"))
	assert.Equal(t, []string{"2"}, taskIDs(env.Engine.Tasks.Rows()))
}

func TestToggleArchive(t *testing.T) {
	env := newTestEnv(t)
	env.Tasks.Seed(task("1", "", nil, fixedNow))
	require.NoError(t, env.Engine.Load(env.Ctx))

	got, err := env.Engine.ToggleTaskArchive(env.Ctx, "1")
	require.NoError(t, err)
	assert.True(t, got.IsArchived)
	require.NotNil(t, got.ArchivedAt)
	assert.Equal(t, domain.FormatTime(fixedNow), *got.ArchivedAt)
	assert.Empty(t, env.Engine.Tasks.Active())
	assert.Len(t, env.Engine.Tasks.Archived(), 1)

	got, err = env.Engine.ToggleTaskArchive(env.Ctx, "1")
	require.NoError(t, err)
	assert.False(t, got.IsArchived)
	assert.Nil(t, got.ArchivedAt)
}

func TestReorderIsImmediate(t *testing.T) {
	env := newTestEnv(t)
	env.Tasks.Seed(
		task("1", "", intp(0), fixedNow),
		task("2", "", intp(1), fixedNow),
		task("3", "", intp(2), fixedNow),
	)
	require.NoError(t, env.Engine.Load(env.Ctx))

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(3)
	env.Tasks.BeforeUpdate = func(ctx context.Context, _ domain.Task) {
		started.Done()
		<-release
	}

	env.Engine.ReorderTasks(env.Ctx, []string{"3", "1", "2"}, "")
	assert.Equal(t, []string{"3", "1", "2"}, taskIDs(env.Engine.Tasks.Active()))

	started.Wait()
	stored, _ := env.Tasks.Row("3")
	assert.Equal(t, 2, *stored.OrderIndex)

	close(release)
	env.Engine.Wait()
	stored, _ = env.Tasks.Row("3")
	assert.Equal(t, 0, *stored.OrderIndex)
	assert.Equal(t, 0, env.Engine.Tasks.Resyncs())
}

func TestReorderScopesDoNotCollide(t *testing.T) {
	env := newTestEnv(t)
	env.Tasks.Seed(
		task("1", "proj-a", intp(engine.PartitionBase("proj-a")+0), fixedNow),
		task("2", "proj-a", intp(engine.PartitionBase("proj-a")+1), fixedNow),
		task("5", "proj-b", intp(engine.PartitionBase("proj-b")+1), fixedNow),
		task("6", "proj-b", intp(engine.PartitionBase("proj-b")+0), fixedNow),
	)
	require.NoError(t, env.Engine.Load(env.Ctx))

	env.Engine.Tasks.Reorder(env.Ctx, []engine.Move{{ID: "2", Index: 0}}, "proj-a")
	env.Engine.Wait()
	for _, row := range env.Tasks.UpdatedRows() {
		assert.Equal(t, "proj-a", row.Scope(), "scope A reorder wrote %s", row.ID)
	}
	b6, _ := env.Tasks.Row("6")

	env.Engine.Tasks.Reorder(env.Ctx, []engine.Move{{ID: "5", Index: 0}}, "proj-b")
	env.Engine.Wait()

	a2, _ := env.Tasks.Row("2")
	b5, _ := env.Tasks.Row("5")
	assert.Equal(t, 454000, *a2.OrderIndex)
	assert.Equal(t, 620000, *b5.OrderIndex)
	diff := *a2.OrderIndex - *b5.OrderIndex
	if diff < 0 {
		diff = -diff
	}
	assert.GreaterOrEqual(t, diff, 1000)

	after6, _ := env.Tasks.Row("6")
	assert.Equal(t, *b6.OrderIndex, *after6.OrderIndex)
}

func TestPartitionBase(t *testing.T) {
	for _, scope := range []string{"proj-a", "proj-b", "x", "a-very-long-project-identifier"} {
		base := engine.PartitionBase(scope)
		assert.Zero(t, base%1000, scope)
		assert.GreaterOrEqual(t, base, 1000, scope)
		assert.LessOrEqual(t, base, 1000*1000, scope)
	}
	assert.Equal(t, 7, engine.PersistedIndex("", 7))
	assert.Equal(t, engine.PartitionBase("p")+7, engine.PersistedIndex("p", 7))
}

func TestReorderFailureResyncs(t *testing.T) {
	env := newTestEnv(t)
	env.Tasks.Seed(task("1", "", intp(0), fixedNow), task("2", "", intp(1), fixedNow))
	require.NoError(t, env.Engine.Load(env.Ctx))
	env.Tasks.UpdateErrFor["1"] = errors.New("conflict")

	env.Engine.ReorderTasks(env.Ctx, []string{"2", "1"}, "")
	assert.Equal(t, []string{"2", "1"}, taskIDs(env.Engine.Tasks.Active()))
	env.Engine.Wait()

	assert.Equal(t, 1, env.Engine.Tasks.Resyncs())
	// row 2 was written, row 1 kept its stored index
	assert.Equal(t, []string{"1", "2"}, taskIDs(env.Engine.Tasks.Active()))
	one, _ := env.Engine.Tasks.Get("1")
	assert.Equal(t, 0, *one.OrderIndex)
}

func TestApplyChanges(t *testing.T) {
	env := newTestEnv(t)
	env.Tasks.Seed(task("1", "", nil, fixedNow))
	require.NoError(t, env.Engine.Load(env.Ctx))
	c := env.Engine.Tasks

	dup := task("1", "", nil, fixedNow)
	dup.Title = "duplicate"
	c.Apply(remote.Change[domain.Task]{Type: remote.ChangeInsert, OwnerID: "u1", ID: "1", Row: dup})
	got, _ := c.Get("1")
	assert.Equal(t, "t1", got.Title)
	assert.Len(t, c.Rows(), 1)

	c.Apply(remote.Change[domain.Task]{Type: remote.ChangeInsert, OwnerID: "u1", ID: "2", Row: task("2", "", nil, fixedNow)})
	assert.Len(t, c.Rows(), 2)

	upd := task("2", "", nil, fixedNow)
	upd.Title = "changed"
	c.Apply(remote.Change[domain.Task]{Type: remote.ChangeUpdate, OwnerID: "u1", ID: "2", Row: upd})
	got, _ = c.Get("2")
	assert.Equal(t, "changed", got.Title)

	c.Apply(remote.Change[domain.Task]{Type: remote.ChangeDelete, OwnerID: "u1", ID: "1"})
	assert.Equal(t, []string{"2"}, taskIDs(c.Rows()))

	other := task("9", "", nil, fixedNow)
	other.OwnerID = "u2"
	c.Apply(remote.Change[domain.Task]{Type: remote.ChangeInsert, OwnerID: "u2", ID: "9", Row: other})
	assert.Equal(t, []string{"2"}, taskIDs(c.Rows()))
}

func TestWatchAppliesFeed(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(env.Ctx)
	seen := make(chan remote.Change[domain.Task], 1)
	env.Engine.Tasks.OnChange = func(ch remote.Change[domain.Task]) { seen <- ch }
	done := make(chan error, 1)
	go func() { done <- env.Engine.Tasks.Watch(ctx) }()
	require.Eventually(t, func() bool { return env.Tasks.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	env.Tasks.Emit(remote.Change[domain.Task]{Type: remote.ChangeInsert, OwnerID: "u1", ID: "7", Row: task("7", "", nil, fixedNow)})
	require.Eventually(t, func() bool {
		_, ok := env.Engine.Tasks.Get("7")
		return ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "7", (<-seen).ID)

	cancel()
	require.NoError(t, <-done)
}

func TestCloseDiscardsLateResults(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Close()
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "late"})
	require.ErrorIs(t, err, engine.ErrClosed)
	assert.Empty(t, env.Engine.Tasks.Rows())
	assert.Len(t, env.Tasks.Rows(), 1)
}

func TestActiveOrdering(t *testing.T) {
	env := newTestEnv(t)
	env.Tasks.Seed(
		task("old", "", nil, fixedNow.Add(-2*time.Hour)),
		task("second", "", intp(2), fixedNow),
		task("new", "", nil, fixedNow.Add(-time.Hour)),
		task("first", "", intp(1), fixedNow),
	)
	require.NoError(t, env.Engine.Load(env.Ctx))
	assert.Equal(t, []string{"first", "second", "new", "old"}, taskIDs(env.Engine.Tasks.Active()))
}

func TestDueSoon(t *testing.T) {
	mk := func(id, end, status string) domain.Task {
		tk := task(id, "", nil, fixedNow)
		tk.EndDate = end
		tk.Status = status
		return tk
	}
	archived := mk("archived", "2024-07-02", domain.StatusPending)
	archived.IsArchived = true
	tasks := []domain.Task{
		mk("week", "2024-07-08", domain.StatusPending),
		mk("today", "2024-07-01", domain.StatusPending),
		mk("late", "2024-07-09", domain.StatusPending),
		mk("past", "2024-06-30", domain.StatusPending),
		mk("done", "2024-07-03", domain.StatusCompleted),
		mk("nodate", "", domain.StatusPending),
		archived,
	}
	got := engine.DueSoon(tasks, fixedNow, 7)
	assert.Equal(t, []string{"today", "week"}, taskIDs(got))
}

func TestProjectTabsSurviveMissingOrderStore(t *testing.T) {
	env := newTestEnv(t)
	env.Orders.GetErr = fmt.Errorf("%w: no such table: tab_orders", remote.ErrSchemaUnavailable)
	for i, id := range []string{"1", "2", "3", "4"} {
		env.Projects.Seed(domain.Project{ID: id, OwnerID: "u1", Name: "p" + id,
			CreatedAt: domain.FormatTime(fixedNow.Add(time.Duration(i) * time.Minute))})
	}
	require.NoError(t, env.Engine.Load(env.Ctx))
	assert.True(t, env.Engine.Tabs.Fallback())

	var ids []string
	for _, p := range env.Engine.ProjectTabs() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids)

	require.NoError(t, env.Engine.MoveTabs(env.Ctx, []string{"3", "1"}))
	ids = ids[:0]
	for _, p := range env.Engine.ProjectTabs() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"3", "1", "2", "4"}, ids)
	assert.Zero(t, env.Orders.Inserts+env.Orders.Updates)
}
