package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"taskdeck/internal/cache"
	"taskdeck/internal/domain"
	"taskdeck/internal/ordering"
	"taskdeck/internal/remote"
)

const DefaultDueSoonDays = 7

// ValidationError reports bad input to a mutation.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Engine is one owner's dashboard session: the task and project collections
// and the project tab order.
type Engine struct {
	Owner       string
	Tasks       *Collection[domain.Task]
	Projects    *Collection[domain.Project]
	Tabs        *ordering.Manager
	Now         func() time.Time
	DueSoonDays int
	Logger      *slog.Logger

	tabMemo ordering.Memo[domain.Project]
	mu      sync.Mutex
	tabSeq  domain.Sequence
}

type Options struct {
	Owner       string
	Tasks       remote.Table[domain.Task]
	Projects    remote.Table[domain.Project]
	Orders      remote.OrderStore
	Cache       cache.Cache
	Now         func() time.Time
	DueSoonDays int
	Logger      *slog.Logger
}

func New(opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DueSoonDays <= 0 {
		opts.DueSoonDays = DefaultDueSoonDays
	}
	logger := opts.Logger.With("owner", opts.Owner)
	return &Engine{
		Owner:       opts.Owner,
		Tasks:       NewCollection(opts.Tasks, opts.Owner, opts.Now, logger.With("collection", remote.Tasks)),
		Projects:    NewCollection(opts.Projects, opts.Owner, opts.Now, logger.With("collection", remote.Projects)),
		Tabs:        ordering.NewManager(opts.Orders, opts.Cache, ordering.Options{Logger: logger}),
		Now:         opts.Now,
		DueSoonDays: opts.DueSoonDays,
		Logger:      logger,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Load fetches tasks, projects and the saved tab order.
func (e *Engine) Load(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.Tasks.Load(gctx) })
	g.Go(func() error { return e.Projects.Load(gctx) })
	if err := g.Wait(); err != nil {
		return err
	}
	seq := e.Tabs.Load(ctx, e.Owner)
	e.mu.Lock()
	e.tabSeq = seq
	e.mu.Unlock()
	return nil
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title       string
	Description string
	ProjectID   string
	StartDate   string
	EndDate     string
	Assignees   []string
}

func validateDates(start, end string) error {
	for field, v := range map[string]string{"start_date": start, "end_date": end} {
		if v == "" {
			continue
		}
		if _, err := time.Parse(domain.DateLayout, v); err != nil {
			return ValidationError{Field: field, Message: "expected YYYY-MM-DD"}
		}
	}
	if start != "" && end != "" && end < start {
		return ValidationError{Field: "end_date", Message: "before start_date"}
	}
	return nil
}

func (e *Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Task{}, ValidationError{Field: "title", Message: "required"}
	}
	if err := validateDates(opts.StartDate, opts.EndDate); err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		OwnerID:     e.Owner,
		Title:       title,
		Description: opts.Description,
		StartDate:   opts.StartDate,
		EndDate:     opts.EndDate,
		Status:      domain.StatusPending,
		Assignees:   opts.Assignees,
	}
	if opts.ProjectID != "" {
		if _, ok := e.Projects.Get(opts.ProjectID); !ok {
			return domain.Task{}, fmt.Errorf("project %s: %w", opts.ProjectID, remote.ErrNotFound)
		}
		id := opts.ProjectID
		t.ProjectID = &id
	}
	return e.Tasks.Create(ctx, t)
}

func (e *Engine) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return domain.Task{}, ValidationError{Field: "title", Message: "required"}
	}
	if patch.Status != nil && *patch.Status != domain.StatusPending && *patch.Status != domain.StatusCompleted {
		return domain.Task{}, ValidationError{Field: "status", Message: "must be pending or completed"}
	}
	cur, _ := e.Tasks.Get(id)
	start, end := cur.StartDate, cur.EndDate
	if patch.StartDate != nil {
		start = *patch.StartDate
	}
	if patch.EndDate != nil {
		end = *patch.EndDate
	}
	if err := validateDates(start, end); err != nil {
		return domain.Task{}, err
	}
	return e.Tasks.Update(ctx, id, patch.Apply)
}

func (e *Engine) DeleteTask(ctx context.Context, id string) error {
	return e.Tasks.Delete(ctx, id)
}

func (e *Engine) ToggleTaskArchive(ctx context.Context, id string) (domain.Task, error) {
	return e.Tasks.ToggleArchive(ctx, id)
}

// ReorderTasks gives ids consecutive local indices starting at 0 within scope.
func (e *Engine) ReorderTasks(ctx context.Context, ids []string, scope string) {
	e.Tasks.Reorder(ctx, movesFor(ids), scope)
}

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	Name        string
	Description string
	Color       string
}

func (e *Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Project{}, ValidationError{Field: "name", Message: "required"}
	}
	return e.Projects.Create(ctx, domain.Project{
		OwnerID:     e.Owner,
		Name:        name,
		Description: opts.Description,
		Color:       opts.Color,
	})
}

func (e *Engine) UpdateProject(ctx context.Context, id string, patch domain.ProjectPatch) (domain.Project, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return domain.Project{}, ValidationError{Field: "name", Message: "required"}
	}
	return e.Projects.Update(ctx, id, patch.Apply)
}

func (e *Engine) DeleteProject(ctx context.Context, id string) error {
	return e.Projects.Delete(ctx, id)
}

func (e *Engine) ToggleProjectArchive(ctx context.Context, id string) (domain.Project, error) {
	return e.Projects.ToggleArchive(ctx, id)
}

func (e *Engine) ReorderProjects(ctx context.Context, ids []string) {
	e.Projects.Reorder(ctx, movesFor(ids), "")
}

func movesFor(ids []string) []Move {
	moves := make([]Move, len(ids))
	for i, id := range ids {
		moves[i] = Move{ID: id, Index: i}
	}
	return moves
}

// ProjectTabs returns active projects in the saved tab order.
func (e *Engine) ProjectTabs() []domain.Project {
	e.mu.Lock()
	seq := e.tabSeq
	e.mu.Unlock()
	return e.tabMemo.Derive(seq, e.Projects.Rows())
}

// ActiveProjectTabs is ProjectTabs without archived projects.
func (e *Engine) ActiveProjectTabs() []domain.Project {
	return filter(e.ProjectTabs(), func(p domain.Project) bool { return !p.IsArchived })
}

// MoveTabs stores a new tab order. It only fails if the local cache does.
func (e *Engine) MoveTabs(ctx context.Context, ids []string) error {
	seq := domain.Sequence(append([]string{}, ids...))
	if err := e.Tabs.Save(ctx, e.Owner, seq); err != nil {
		return err
	}
	e.mu.Lock()
	e.tabSeq = seq
	e.mu.Unlock()
	return nil
}

// DueSoon returns pending, non-archived tasks ending within DueSoonDays.
func (e *Engine) DueSoon() []domain.Task {
	return DueSoon(e.Tasks.Rows(), e.now(), e.DueSoonDays)
}

// DueSoon filters tasks to pending ones whose end date falls between today and
// today+days inclusive.
func DueSoon(tasks []domain.Task, now time.Time, days int) []domain.Task {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	limit := today.AddDate(0, 0, days)
	out := filter(tasks, func(t domain.Task) bool {
		if t.IsArchived || t.Status != domain.StatusPending {
			return false
		}
		end := t.End()
		if end.IsZero() {
			return false
		}
		return !end.Before(today) && !end.After(limit)
	})
	return SortByEnd(out)
}

// SortByEnd sorts a copy of tasks by end date, tasks without one last.
func SortByEnd(tasks []domain.Task) []domain.Task {
	out := append([]domain.Task(nil), tasks...)
	sort.SliceStable(out, func(i, j int) bool { return endBefore(out[i], out[j]) })
	return out
}

func endBefore(a, b domain.Task) bool {
	ea, eb := a.End(), b.End()
	if ea.IsZero() {
		return false
	}
	if eb.IsZero() {
		return true
	}
	return ea.Before(eb)
}

// Watch applies both change feeds until ctx ends.
func (e *Engine) Watch(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.Tasks.Watch(gctx) })
	g.Go(func() error { return e.Projects.Watch(gctx) })
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Wait joins background reorder writes.
func (e *Engine) Wait() {
	e.Tasks.Wait()
	e.Projects.Wait()
}

// Close ends the session; late results are dropped.
func (e *Engine) Close() {
	e.Tasks.Close()
	e.Projects.Close()
}
