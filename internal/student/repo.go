package student

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"roster/internal/roster"
	"roster/internal/store"
)

var schema = map[store.Dialect][]string{
	store.SQLite: {
		`CREATE TABLE IF NOT EXISTS students (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			name        TEXT NOT NULL,
			email       TEXT NOT NULL UNIQUE,
			phone       TEXT NOT NULL DEFAULT '',
			department  TEXT NOT NULL,
			year        INTEGER NOT NULL,
			status      TEXT NOT NULL DEFAULT 'ACTIVE',
			created_at  DATETIME NOT NULL,
			updated_at  DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_students_status ON students(status)`,
		`CREATE TABLE IF NOT EXISTS attendance (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			student_id   INTEGER NOT NULL REFERENCES students(id),
			attended_on  TEXT NOT NULL,
			status       TEXT NOT NULL,
			created_at   DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_student ON attendance(student_id)`,
		`CREATE TABLE IF NOT EXISTS marks (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			student_id  INTEGER NOT NULL REFERENCES students(id),
			subject     TEXT NOT NULL,
			score       INTEGER NOT NULL CHECK (score BETWEEN 0 AND 100),
			created_at  DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_marks_student ON marks(student_id)`,
	},
	store.Postgres: {
		`CREATE TABLE IF NOT EXISTS students (
			id          BIGSERIAL PRIMARY KEY,
			name        TEXT NOT NULL,
			email       TEXT NOT NULL UNIQUE,
			phone       TEXT NOT NULL DEFAULT '',
			department  TEXT NOT NULL,
			year        INTEGER NOT NULL,
			status      TEXT NOT NULL DEFAULT 'ACTIVE',
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_students_status ON students(status)`,
		`CREATE TABLE IF NOT EXISTS attendance (
			id           BIGSERIAL PRIMARY KEY,
			student_id   BIGINT NOT NULL REFERENCES students(id),
			attended_on  TEXT NOT NULL,
			status       TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_student ON attendance(student_id)`,
		`CREATE TABLE IF NOT EXISTS marks (
			id          BIGSERIAL PRIMARY KEY,
			student_id  BIGINT NOT NULL REFERENCES students(id),
			subject     TEXT NOT NULL,
			score       INTEGER NOT NULL CHECK (score BETWEEN 0 AND 100),
			created_at  TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_marks_student ON marks(student_id)`,
	},
}

const studentColumns = `id, name, email, phone, department, year, status, created_at, updated_at`

// Repository persists students and their child records.
type Repository struct {
	db  *store.DB
	now func() time.Time
}

// NewRepository creates a repo and applies the schema if absent.
func NewRepository(ctx context.Context, db *store.DB) (*Repository, error) {
	if err := db.EnsureSchema(ctx, schema); err != nil {
		return nil, err
	}
	return &Repository{db: db, now: roster.Now}, nil
}

// Insert writes an ACTIVE row and returns its id.
func (r *Repository) Insert(ctx context.Context, f Fields) (int64, error) {
	now := r.now()
	var id int64
	err := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`
		INSERT INTO students (name, email, phone, department, year, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), f.Name, f.Email, f.Phone, f.Department, f.Year, StatusActive, now, now).Scan(&id)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return 0, fmt.Errorf("email %q: %w", f.Email, roster.ErrDuplicateKey)
		}
		return 0, err
	}
	return id, nil
}

// Get returns the student with id regardless of status.
func (r *Repository) Get(ctx context.Context, id int64) (Student, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.Rebind(
		`SELECT `+studentColumns+` FROM students WHERE id = ?`), id)
	st, err := scanStudent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Student{}, fmt.Errorf("student %d: %w", id, roster.ErrNotFound)
		}
		return Student{}, err
	}
	return st, nil
}

// ListActive returns ACTIVE students matching every predicate in f, by ascending id.
func (r *Repository) ListActive(ctx context.Context, f roster.Filter) ([]Student, error) {
	clauses, args, err := predicates.Build(f)
	if err != nil {
		return nil, err
	}
	clauses = append([]string{"status = ?"}, clauses...)
	args = append([]any{StatusActive}, args...)
	return r.list(ctx, " WHERE "+strings.Join(clauses, " AND "), args)
}

// ListAll returns every student, INACTIVE included, by ascending id.
func (r *Repository) ListAll(ctx context.Context) ([]Student, error) {
	return r.list(ctx, "", nil)
}

func (r *Repository) list(ctx context.Context, where string, args []any) ([]Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students` + where + ` ORDER BY id ASC`
	rows, err := r.db.Client.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	students := []Student{}
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// Update overwrites the editable fields of id and refreshes updated_at.
func (r *Repository) Update(ctx context.Context, id int64, f Fields) error {
	res, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`
		UPDATE students
		SET name = ?, email = ?, phone = ?, department = ?, year = ?, updated_at = ?
		WHERE id = ?
	`), f.Name, f.Email, f.Phone, f.Department, f.Year, r.now(), id)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return fmt.Errorf("email %q: %w", f.Email, roster.ErrDuplicateKey)
		}
		return err
	}
	return r.expectRow(ctx, res, id)
}

// Deactivate flips ACTIVE to INACTIVE. An already inactive row is left untouched.
func (r *Repository) Deactivate(ctx context.Context, id int64) error {
	res, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`
		UPDATE students SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`), StatusInactive, r.now(), id, StatusActive)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err = r.Get(ctx, id)
	return err
}

func (r *Repository) expectRow(ctx context.Context, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("student %d: %w", id, roster.ErrNotFound)
	}
	return nil
}

// InsertAttendance appends one attendance row.
func (r *Repository) InsertAttendance(ctx context.Context, a Attendance) (Attendance, error) {
	a.CreatedAt = r.now()
	err := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`
		INSERT INTO attendance (student_id, attended_on, status, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`), a.StudentID, a.Date, a.Status, a.CreatedAt).Scan(&a.ID)
	if err != nil {
		return Attendance{}, err
	}
	return a, nil
}

// ListAttendance returns the attendance rows of one student by ascending id.
func (r *Repository) ListAttendance(ctx context.Context, studentID int64) ([]Attendance, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.db.Rebind(`
		SELECT id, student_id, attended_on, status, created_at
		FROM attendance WHERE student_id = ? ORDER BY id ASC
	`), studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Attendance{}
	for rows.Next() {
		var a Attendance
		if err := rows.Scan(&a.ID, &a.StudentID, &a.Date, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertMark appends one mark row.
func (r *Repository) InsertMark(ctx context.Context, m Mark) (Mark, error) {
	m.CreatedAt = r.now()
	err := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`
		INSERT INTO marks (student_id, subject, score, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`), m.StudentID, m.Subject, m.Score, m.CreatedAt).Scan(&m.ID)
	if err != nil {
		return Mark{}, err
	}
	return m, nil
}

// ListMarks returns the marks of one student by ascending id.
func (r *Repository) ListMarks(ctx context.Context, studentID int64) ([]Mark, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.db.Rebind(`
		SELECT id, student_id, subject, score, created_at
		FROM marks WHERE student_id = ? ORDER BY id ASC
	`), studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Mark{}
	for rows.Next() {
		var m Mark
		if err := rows.Scan(&m.ID, &m.StudentID, &m.Subject, &m.Score, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(s scanner) (Student, error) {
	var st Student
	err := s.Scan(&st.ID, &st.Name, &st.Email, &st.Phone, &st.Department, &st.Year, &st.Status, &st.CreatedAt, &st.UpdatedAt)
	return st, err
}
