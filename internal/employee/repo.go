package employee

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"roster/internal/roster"
	"roster/internal/store"
)

// Repository persists employees through gorm on top of the store's single connection.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository wraps db with gorm and creates the employees table if absent.
func NewRepository(ctx context.Context, db *store.DB) (*Repository, error) {
	var dialector gorm.Dialector
	switch db.Dialect {
	case store.Postgres:
		dialector = postgres.New(postgres.Config{Conn: db.Client})
	default:
		dialector = &sqlite.Dialector{DriverName: string(store.SQLite), Conn: db.Client}
	}

	r := &Repository{now: roster.Now}
	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return r.now() },
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	if err := gdb.WithContext(ctx).AutoMigrate(&Employee{}); err != nil {
		return nil, fmt.Errorf("migrate employees: %w", err)
	}
	r.db = gdb
	return r, nil
}

// Insert writes a new row and returns its id.
func (r *Repository) Insert(ctx context.Context, f Fields) (int64, error) {
	now := r.now()
	e := Employee{
		Name:       f.Name,
		Email:      f.Email,
		Phone:      f.Phone,
		Department: f.Department,
		Experience: f.Experience,
		Salary:     f.Salary,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.db.WithContext(ctx).Create(&e).Error; err != nil {
		return 0, err
	}
	return e.ID, nil
}

// Get returns the employee with id.
func (r *Repository) Get(ctx context.Context, id int64) (Employee, error) {
	var e Employee
	err := r.db.WithContext(ctx).First(&e, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Employee{}, fmt.Errorf("employee %d: %w", id, roster.ErrNotFound)
	}
	return e, err
}

// List returns employees matching every predicate in f, by ascending id.
func (r *Repository) List(ctx context.Context, f roster.Filter) ([]Employee, error) {
	clauses, args, err := predicates.Build(f)
	if err != nil {
		return nil, err
	}
	q := r.db.WithContext(ctx).Model(&Employee{})
	for i, clause := range clauses {
		q = q.Where(clause, args[i])
	}
	out := []Employee{}
	if err := q.Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Update overwrites every editable field of id.
func (r *Repository) Update(ctx context.Context, id int64, f Fields) error {
	res := r.db.WithContext(ctx).Model(&Employee{}).Where("id = ?", id).Updates(map[string]any{
		"name":       f.Name,
		"email":      f.Email,
		"phone":      f.Phone,
		"department": f.Department,
		"experience": f.Experience,
		"salary":     f.Salary,
		"updated_at": r.now(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("employee %d: %w", id, roster.ErrNotFound)
	}
	return nil
}

// Delete physically removes id. There is no recovery path.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&Employee{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("employee %d: %w", id, roster.ErrNotFound)
	}
	return nil
}

// Dashboard computes headcount and salary aggregates.
func (r *Repository) Dashboard(ctx context.Context) (Dashboard, error) {
	d := Dashboard{Departments: []DepartmentStats{}}
	var totals struct {
		Headcount         int64
		AverageExperience *float64
	}
	err := r.db.WithContext(ctx).Model(&Employee{}).
		Select("COUNT(*) AS headcount, AVG(CAST(experience AS DOUBLE PRECISION)) AS average_experience").
		Scan(&totals).Error
	if err != nil {
		return Dashboard{}, err
	}
	d.Headcount = totals.Headcount
	if totals.AverageExperience != nil {
		d.AverageExperience = *totals.AverageExperience
	}

	err = r.db.WithContext(ctx).Model(&Employee{}).
		Select("department, COUNT(*) AS headcount, AVG(salary) AS average_salary").
		Group("department").
		Order("department").
		Scan(&d.Departments).Error
	if err != nil {
		return Dashboard{}, err
	}
	return d, nil
}
