package student

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"roster/internal/queue"
	"roster/internal/roster"
	"roster/internal/store"
	"roster/internal/tabular"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type recordingPublisher struct{ events []queue.Event }

func (p *recordingPublisher) Publish(_ context.Context, evt queue.Event) error {
	p.events = append(p.events, evt)
	return nil
}

func setupTestService(t *testing.T, opts ...Option) (*Service, *fakeClock) {
	t.Helper()
	db, err := store.NewDB(filepath.Join(t.TempDir(), "students.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo, err := NewRepository(context.Background(), db)
	require.NoError(t, err)
	clock := &fakeClock{t: time.Date(2024, 9, 1, 9, 0, 0, 0, time.UTC)}
	repo.now = clock.now

	return NewService(repo, zap.NewNop(), opts...), clock
}

func alice() Fields {
	return Fields{Name: "Alice", Email: "alice@x.com", Phone: "555-0101", Department: "CSE", Year: 2}
}

func bob() Fields {
	return Fields{Name: "Bob", Email: "bob@x.com", Department: "ECE", Year: 1}
}

func ids(list []Student) []int64 {
	out := make([]int64, 0, len(list))
	for _, s := range list {
		out = append(out, s.ID)
	}
	return out
}

func TestAdd_ThenGetReturnsInsertedRow(t *testing.T) {
	svc, clock := setupTestService(t)
	ctx := context.Background()

	id, err := svc.Add(ctx, alice())
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, "alice@x.com", got.Email)
	assert.Equal(t, "555-0101", got.Phone)
	assert.Equal(t, "CSE", got.Department)
	assert.Equal(t, 2, got.Year)
	assert.Equal(t, StatusActive, got.Status)
	assert.True(t, got.CreatedAt.Equal(got.UpdatedAt))
	assert.True(t, got.CreatedAt.Equal(clock.t))
}

func TestAdd_TrimsAndRequiresNameAndEmail(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	f := alice()
	f.Name = "   "
	_, err := svc.Add(ctx, f)
	var ve *roster.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "name", ve.Field)

	f = alice()
	f.Email = "\t"
	_, err = svc.Add(ctx, f)
	assert.ErrorIs(t, err, roster.ErrValidation)

	f = alice()
	f.Name = "  Alice  "
	id, err := svc.Add(ctx, f)
	require.NoError(t, err)
	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
}

func TestAdd_RejectsUnknownDepartmentAndYear(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	f := alice()
	f.Department = "MECH"
	_, err := svc.Add(ctx, f)
	assert.ErrorIs(t, err, roster.ErrValidation)

	f = alice()
	f.Year = 5
	_, err = svc.Add(ctx, f)
	assert.ErrorIs(t, err, roster.ErrValidation)
}

func TestAdd_DuplicateEmail(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, alice())
	require.NoError(t, err)

	dup := bob()
	dup.Email = "alice@x.com"
	_, err = svc.Add(ctx, dup)
	assert.ErrorIs(t, err, roster.ErrDuplicateKey)
	assert.False(t, errors.Is(err, roster.ErrValidation))
}

func TestAdd_DuplicateEmailOfInactiveStudent(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	id, err := svc.Add(ctx, alice())
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, id))

	_, err = svc.Add(ctx, alice())
	assert.ErrorIs(t, err, roster.ErrDuplicateKey)
}

func TestGet_NotFound(t *testing.T) {
	svc, _ := setupTestService(t)
	_, err := svc.Get(context.Background(), 42)
	assert.ErrorIs(t, err, roster.ErrNotFound)
}

func TestUpdate_OverwritesFieldsAndAdvancesUpdatedAt(t *testing.T) {
	svc, clock := setupTestService(t)
	ctx := context.Background()

	id, err := svc.Add(ctx, alice())
	require.NoError(t, err)
	before, err := svc.Get(ctx, id)
	require.NoError(t, err)

	clock.advance(time.Hour)
	f := alice()
	f.Name = "Alice Liddell"
	f.Year = 3
	after, err := svc.Update(ctx, id, f)
	require.NoError(t, err)

	assert.Equal(t, id, after.ID)
	assert.Equal(t, "Alice Liddell", after.Name)
	assert.Equal(t, 3, after.Year)
	assert.Equal(t, before.Email, after.Email)
	assert.Equal(t, StatusActive, after.Status)
	assert.True(t, after.CreatedAt.Equal(before.CreatedAt))
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
}

func TestUpdate_NotFound(t *testing.T) {
	svc, _ := setupTestService(t)
	_, err := svc.Update(context.Background(), 999, alice())
	assert.ErrorIs(t, err, roster.ErrNotFound)
}

func TestUpdate_EmailCollision(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, alice())
	require.NoError(t, err)
	bobID, err := svc.Add(ctx, bob())
	require.NoError(t, err)

	f := bob()
	f.Email = "alice@x.com"
	_, err = svc.Update(ctx, bobID, f)
	assert.ErrorIs(t, err, roster.ErrDuplicateKey)
}

func TestUpdate_DoesNotReactivate(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	id, err := svc.Add(ctx, alice())
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, id))

	got, err := svc.Update(ctx, id, alice())
	require.NoError(t, err)
	assert.Equal(t, StatusInactive, got.Status)
}

func TestDeactivate_HidesFromListAndIsIdempotent(t *testing.T) {
	svc, clock := setupTestService(t)
	ctx := context.Background()

	id, err := svc.Add(ctx, alice())
	require.NoError(t, err)

	clock.advance(time.Minute)
	require.NoError(t, svc.Deactivate(ctx, id))
	first, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusInactive, first.Status)
	assert.True(t, first.UpdatedAt.Equal(clock.t))

	clock.advance(time.Minute)
	require.NoError(t, svc.Deactivate(ctx, id))
	second, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, second.UpdatedAt.Equal(first.UpdatedAt), "second deactivate must be a no-op")

	list, err := svc.ListActive(ctx, nil)
	require.NoError(t, err)
	assert.NotContains(t, ids(list), id)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{id}, ids(all))
}

func TestDeactivate_NotFound(t *testing.T) {
	svc, _ := setupTestService(t)
	err := svc.Deactivate(context.Background(), 7)
	assert.ErrorIs(t, err, roster.ErrNotFound)
}

func TestListActive_Filters(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	for _, f := range []Fields{
		alice(),
		bob(),
		{Name: "Alicia Keys", Email: "ak@x.com", Department: "CSE", Year: 4},
		{Name: "Carol", Email: "carol@x.com", Department: "CSE", Year: 2},
	} {
		_, err := svc.Add(ctx, f)
		require.NoError(t, err)
	}

	list, err := svc.ListActive(ctx, roster.Filter{FilterDepartment: "CSE"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 4}, ids(list))

	list, err = svc.ListActive(ctx, roster.Filter{FilterName: "ALIC"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids(list))

	list, err = svc.ListActive(ctx, roster.Filter{FilterDepartment: "CSE", FilterYear: "2"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4}, ids(list))

	list, err = svc.ListActive(ctx, roster.Filter{FilterDepartment: "DS"})
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	list, err = svc.ListActive(ctx, roster.Filter{FilterName: "%"})
	require.NoError(t, err)
	assert.Empty(t, list, "wildcards in the keyword match literally")
}

func TestListActive_RejectsUnknownKey(t *testing.T) {
	svc, _ := setupTestService(t)
	_, err := svc.ListActive(context.Background(), roster.Filter{"status": "INACTIVE"})
	assert.ErrorIs(t, err, roster.ErrValidation)
}

func TestScenario_AddFilterDeactivateExport(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	aliceID, err := svc.Add(ctx, alice())
	require.NoError(t, err)
	assert.Equal(t, int64(1), aliceID)
	bobID, err := svc.Add(ctx, bob())
	require.NoError(t, err)
	assert.Equal(t, int64(2), bobID)

	list, err := svc.ListActive(ctx, roster.Filter{FilterDepartment: "CSE"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(list))

	require.NoError(t, svc.Deactivate(ctx, aliceID))

	list, err = svc.ListActive(ctx, roster.Filter{FilterDepartment: "CSE"})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = svc.ListActive(ctx, roster.Filter{FilterDepartment: "ECE"})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids(list))

	var cse bytes.Buffer
	require.NoError(t, svc.ExportCSV(ctx, &cse, roster.Filter{FilterDepartment: "CSE"}))
	assert.Equal(t, strings.Join(Columns, ",")+"\n", cse.String())

	var all bytes.Buffer
	require.NoError(t, svc.ExportCSV(ctx, &all, nil))
	lines := strings.Split(strings.TrimSpace(all.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(Columns, ","), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2,Bob,bob@x.com,,ECE,1,ACTIVE,"))

	var xlsx bytes.Buffer
	require.NoError(t, svc.ExportXLSX(ctx, &xlsx, nil))
	header, rows, err := tabular.ReadXLSX(&xlsx)
	require.NoError(t, err)
	assert.Equal(t, Columns, header)
	require.Len(t, rows, 1)
	assert.Equal(t, "Bob", rows[0].Cells[1])
}

func TestRecordAttendance(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	id, err := svc.Add(ctx, alice())
	require.NoError(t, err)

	a, err := svc.RecordAttendance(ctx, id, "2024-09-02", Present)
	require.NoError(t, err)
	assert.Equal(t, id, a.StudentID)
	assert.Equal(t, "2024-09-02", a.Date)
	assert.NotZero(t, a.ID)

	_, err = svc.RecordAttendance(ctx, id, "02/09/2024", Present)
	assert.ErrorIs(t, err, roster.ErrValidation)
	_, err = svc.RecordAttendance(ctx, id, "2024-09-03", "LATE")
	assert.ErrorIs(t, err, roster.ErrValidation)
	_, err = svc.RecordAttendance(ctx, 99, "2024-09-03", Absent)
	assert.ErrorIs(t, err, roster.ErrNotFound)

	list, err := svc.Attendance(ctx, id)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, Present, list[0].Status)
}

func TestRecordMarks_ScoreRange(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	id, err := svc.Add(ctx, alice())
	require.NoError(t, err)

	for _, score := range []int{0, 100} {
		_, err := svc.RecordMarks(ctx, id, "Maths", score)
		assert.NoError(t, err, score)
	}
	for _, score := range []int{-1, 101} {
		_, err := svc.RecordMarks(ctx, id, "Maths", score)
		assert.ErrorIs(t, err, roster.ErrValidation, score)
	}
	_, err = svc.RecordMarks(ctx, id, "  ", 50)
	assert.ErrorIs(t, err, roster.ErrValidation)
	_, err = svc.RecordMarks(ctx, 404, "Maths", 50)
	assert.ErrorIs(t, err, roster.ErrNotFound)

	marks, err := svc.Marks(ctx, id)
	require.NoError(t, err)
	assert.Len(t, marks, 2)
}

func TestRecordMarks_InactiveParentAllowed(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	id, err := svc.Add(ctx, alice())
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, id))

	_, err = svc.RecordMarks(ctx, id, "Physics", 70)
	assert.NoError(t, err)
}

func TestDashboard(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	aliceID, err := svc.Add(ctx, alice())
	require.NoError(t, err)
	bobID, err := svc.Add(ctx, bob())
	require.NoError(t, err)
	_, err = svc.Add(ctx, Fields{Name: "Carol", Email: "carol@x.com", Department: "CSE", Year: 2})
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, bobID))

	_, err = svc.RecordAttendance(ctx, aliceID, "2024-09-02", Present)
	require.NoError(t, err)
	_, err = svc.RecordAttendance(ctx, aliceID, "2024-09-03", Absent)
	require.NoError(t, err)
	_, err = svc.RecordMarks(ctx, aliceID, "Maths", 80)
	require.NoError(t, err)
	_, err = svc.RecordMarks(ctx, aliceID, "Maths", 90)
	require.NoError(t, err)

	d, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), d.Active)
	assert.Equal(t, int64(1), d.Inactive)
	assert.Equal(t, map[string]int64{"CSE": 2}, d.ByDepartment)
	assert.Equal(t, map[int]int64{2: 2}, d.ByYear)
	assert.InDelta(t, 0.5, d.AttendanceRate, 1e-9)
	require.Len(t, d.SubjectAverage, 1)
	assert.Equal(t, "Maths", d.SubjectAverage[0].Subject)
	assert.InDelta(t, 85.0, d.SubjectAverage[0].Average, 1e-9)
	assert.Equal(t, int64(2), d.SubjectAverage[0].Count)
}

type mapCache struct {
	hits   int
	stored map[string]Dashboard
}

func (c *mapCache) GetJSON(_ context.Context, key string, dest any) error {
	d, ok := c.stored[key]
	if !ok {
		return store.ErrCacheMiss
	}
	c.hits++
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

func TestDashboard_UsesCacheUntilNextWrite(t *testing.T) {
	cache := &mapCache{stored: map[string]Dashboard{}}
	svc, _ := setupTestService(t, WithCache(cache, time.Minute))
	ctx := context.Background()

	_, err := svc.Add(ctx, alice())
	require.NoError(t, err)

	first, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Active)
	assert.Equal(t, 0, cache.hits)

	again, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, first, again)

	bobID, err := svc.Add(ctx, bob())
	require.NoError(t, err)
	assert.NotContains(t, cache.stored, DashboardCacheKey, "a write clears the cached dashboard")

	second, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, int64(2), second.Active)

	_, err = svc.RecordAttendance(ctx, bobID, "2024-09-02", Present)
	require.NoError(t, err)
	assert.NotContains(t, cache.stored, DashboardCacheKey)
}

func TestDashboard_ZeroTTLDisablesCache(t *testing.T) {
	cache := &mapCache{stored: map[string]Dashboard{}}
	svc, _ := setupTestService(t, WithCache(cache, 0))
	ctx := context.Background()

	_, err := svc.Add(ctx, alice())
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := svc.Dashboard(ctx)
		require.NoError(t, err)
	}
	assert.Empty(t, cache.stored)
	assert.Equal(t, 0, cache.hits)
}

func TestMutationsPublishEvents(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := setupTestService(t, WithEvents(pub))
	ctx := context.Background()

	id, err := svc.Add(ctx, alice())
	require.NoError(t, err)
	_, err = svc.Update(ctx, id, alice())
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, id))
	_, err = svc.Add(ctx, alice()) // duplicate, no event
	require.Error(t, err)

	var ops []string
	for _, e := range pub.events {
		assert.Equal(t, Entity, e.Entity)
		assert.Equal(t, id, e.ID)
		ops = append(ops, e.Op)
	}
	assert.Equal(t, []string{"add", "update", "deactivate"}, ops)
}
