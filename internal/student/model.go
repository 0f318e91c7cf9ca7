package student

import (
	"strconv"
	"time"

	"roster/internal/roster"
)

// Status drives visibility: only ACTIVE students appear in default listings.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Departments accepted for a student.
var Departments = []string{"CSE", "AIML", "DS", "ECE"}

// Filter keys accepted by ListActive.
const (
	FilterName       roster.Key = "name"
	FilterDepartment roster.Key = "department"
	FilterYear       roster.Key = "year"
)

var predicates = roster.Predicates{
	FilterName:       roster.Contains("name"),
	FilterDepartment: roster.Equals("department"),
	FilterYear:       roster.EqualsInt("year"),
}

// Student is one row of the students table.
type Student struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Department string    `json:"department"`
	Year       int       `json:"year"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Columns is the export header, in display order.
var Columns = []string{"id", "name", "email", "phone", "department", "year", "status", "created_at", "updated_at"}

// Record renders s in Columns order.
func (s Student) Record() []string {
	return []string{
		strconv.FormatInt(s.ID, 10),
		s.Name,
		s.Email,
		s.Phone,
		s.Department,
		strconv.Itoa(s.Year),
		string(s.Status),
		s.CreatedAt.Format(time.RFC3339),
		s.UpdatedAt.Format(time.RFC3339),
	}
}

// Fields are the caller-supplied values for Add and Update.
type Fields struct {
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email" validate:"required"`
	Phone      string `json:"phone"`
	Department string `json:"department" validate:"required,oneof=CSE AIML DS ECE"`
	Year       int    `json:"year" validate:"min=1,max=4"`
}

func (f *Fields) normalize() error {
	roster.Trim(&f.Name, &f.Email, &f.Phone, &f.Department)
	return roster.Validate(f)
}

// AttendanceStatus is the outcome of one attendance entry.
type AttendanceStatus string

const (
	Present AttendanceStatus = "PRESENT"
	Absent  AttendanceStatus = "ABSENT"
)

// Attendance is an append-only child record of a student.
type Attendance struct {
	ID        int64            `json:"id"`
	StudentID int64            `json:"student_id"`
	Date      string           `json:"date"`
	Status    AttendanceStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

// Mark is an append-only score for one subject.
type Mark struct {
	ID        int64     `json:"id"`
	StudentID int64     `json:"student_id"`
	Subject   string    `json:"subject"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

type markInput struct {
	Subject string `json:"subject" validate:"required"`
	Score   int    `json:"score" validate:"min=0,max=100"`
}

// Dashboard aggregates the student store.
type Dashboard struct {
	Active         int64            `json:"active"`
	Inactive       int64            `json:"inactive"`
	ByDepartment   map[string]int64 `json:"by_department"`
	ByYear         map[int]int64    `json:"by_year"`
	AttendanceRate float64          `json:"attendance_rate"`
	SubjectAverage []SubjectAverage `json:"subject_average"`
}

// SubjectAverage is the mean score recorded for a subject.
type SubjectAverage struct {
	Subject string  `json:"subject"`
	Average float64 `json:"average"`
	Count   int64   `json:"count"`
}
