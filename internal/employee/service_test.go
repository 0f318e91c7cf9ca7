package employee

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"roster/internal/roster"
	"roster/internal/store"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func setupTestService(t *testing.T) (*Service, *fakeClock) {
	t.Helper()
	db, err := store.NewDB(filepath.Join(t.TempDir(), "employees.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo, err := NewRepository(context.Background(), db)
	require.NoError(t, err)
	clock := &fakeClock{t: time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)}
	repo.now = clock.now

	return NewService(repo, zap.NewNop()), clock
}

func dana() Fields {
	return Fields{Name: "Dana", Email: "dana@corp.io", Department: "IT", Experience: 5, Salary: 72000}
}

func eli() Fields {
	return Fields{Name: "Eli", Email: "eli@corp.io", Department: "HR", Experience: 2, Salary: 48000}
}

func TestAdd_ThenGet(t *testing.T) {
	svc, clock := setupTestService(t)
	ctx := context.Background()

	id, err := svc.Add(ctx, dana())
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Dana", got.Name)
	assert.Equal(t, "IT", got.Department)
	assert.Equal(t, 5, got.Experience)
	assert.InDelta(t, 72000.0, got.Salary, 1e-9)
	assert.True(t, got.CreatedAt.Equal(clock.t))
	assert.True(t, got.CreatedAt.Equal(got.UpdatedAt))
}

func TestAdd_Validation(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	bad := []Fields{
		{Name: " ", Department: "IT"},
		{Name: "X", Department: "Legal"},
		{Name: "X", Department: "IT", Experience: -1},
		{Name: "X", Department: "IT", Salary: -10},
	}
	for _, f := range bad {
		_, err := svc.Add(ctx, f)
		assert.ErrorIs(t, err, roster.ErrValidation, "%+v", f)
	}
}

func TestAdd_EmailNotUnique(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, dana())
	require.NoError(t, err)
	_, err = svc.Add(ctx, dana())
	assert.NoError(t, err)
}

func TestList_Filters(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	for _, f := range []Fields{dana(), eli(), {Name: "Daniel", Department: "IT", Experience: 2}} {
		_, err := svc.Add(ctx, f)
		require.NoError(t, err)
	}

	list, err := svc.List(ctx, roster.Filter{FilterDepartment: "IT"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(1), list[0].ID)
	assert.Equal(t, int64(3), list[1].ID)

	list, err = svc.List(ctx, roster.Filter{FilterName: "dan", FilterExperience: "2"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Daniel", list[0].Name)

	list, err = svc.List(ctx, roster.Filter{FilterDepartment: "Sales"})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.List(ctx, roster.Filter{"salary": "1"})
	assert.ErrorIs(t, err, roster.ErrValidation)
}

func TestUpdate(t *testing.T) {
	svc, clock := setupTestService(t)
	ctx := context.Background()

	id, err := svc.Add(ctx, dana())
	require.NoError(t, err)
	before, err := svc.Get(ctx, id)
	require.NoError(t, err)

	clock.advance(24 * time.Hour)
	f := dana()
	f.Department = "Operations"
	f.Salary = 80000
	after, err := svc.Update(ctx, id, f)
	require.NoError(t, err)
	assert.Equal(t, "Operations", after.Department)
	assert.InDelta(t, 80000.0, after.Salary, 1e-9)
	assert.True(t, after.CreatedAt.Equal(before.CreatedAt))
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))

	_, err = svc.Update(ctx, 999, dana())
	assert.ErrorIs(t, err, roster.ErrNotFound)
}

func TestRemove(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	id, err := svc.Add(ctx, dana())
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, id))
	_, err = svc.Get(ctx, id)
	assert.ErrorIs(t, err, roster.ErrNotFound)

	err = svc.Remove(ctx, id)
	assert.ErrorIs(t, err, roster.ErrNotFound)
}

func TestDashboard(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	empty, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.Headcount)
	assert.Empty(t, empty.Departments)

	for _, f := range []Fields{dana(), eli(), {Name: "Fay", Department: "IT", Experience: 8, Salary: 88000}} {
		_, err := svc.Add(ctx, f)
		require.NoError(t, err)
	}

	d, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), d.Headcount)
	assert.InDelta(t, 5.0, d.AverageExperience, 1e-9)
	require.Len(t, d.Departments, 2)
	assert.Equal(t, "HR", d.Departments[0].Department)
	assert.Equal(t, int64(1), d.Departments[0].Headcount)
	assert.Equal(t, "IT", d.Departments[1].Department)
	assert.InDelta(t, 80000.0, d.Departments[1].AverageSalary, 1e-9)
}

func TestExportCSV(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, Fields{Name: "Smith, Jo", Department: "Sales", Salary: 1000.5})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(ctx, &buf, nil))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(Columns, ","), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], `1,"Smith, Jo",,,Sales,0,1000.50,`))
}

type mapCache struct {
	stored map[string]Dashboard
}

func (c *mapCache) GetJSON(_ context.Context, key string, dest any) error {
	d, ok := c.stored[key]
	if !ok {
		return store.ErrCacheMiss
	}
	*dest.(*Dashboard) = d
	return nil
}

func (c *mapCache) SetJSON(_ context.Context, key string, v any, _ time.Duration) error {
	c.stored[key] = v.(Dashboard)
	return nil
}

func (c *mapCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.stored, k)
	}
	return nil
}

func TestDashboard_CacheClearedOnRemove(t *testing.T) {
	cache := &mapCache{stored: map[string]Dashboard{}}
	svc, _ := setupTestService(t)
	WithCache(cache, time.Minute)(svc)
	ctx := context.Background()

	id, err := svc.Add(ctx, dana())
	require.NoError(t, err)
	d, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.Headcount)
	assert.Contains(t, cache.stored, DashboardCacheKey)

	require.NoError(t, svc.Remove(ctx, id))
	assert.NotContains(t, cache.stored, DashboardCacheKey)

	d, err = svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Zero(t, d.Headcount)
}

func TestWithCache_ZeroTTLDisablesCache(t *testing.T) {
	cache := &mapCache{stored: map[string]Dashboard{}}
	svc, _ := setupTestService(t)
	WithCache(cache, 0)(svc)

	_, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cache.stored)
}
