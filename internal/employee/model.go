package employee

import (
	"strconv"
	"time"

	"roster/internal/roster"
)

// Departments accepted for an employee.
var Departments = []string{"HR", "IT", "Finance", "Sales", "Operations"}

// Filter keys accepted by List.
const (
	FilterName       roster.Key = "name"
	FilterDepartment roster.Key = "department"
	FilterExperience roster.Key = "experience"
)

var predicates = roster.Predicates{
	FilterName:       roster.Contains("name"),
	FilterDepartment: roster.Equals("department"),
	FilterExperience: roster.EqualsInt("experience"),
}

// Employee has no status: removal is physical.
type Employee struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name       string    `gorm:"not null" json:"name"`
	Email      string    `gorm:"not null;default:''" json:"email"`
	Phone      string    `gorm:"not null;default:''" json:"phone"`
	Department string    `gorm:"not null;index" json:"department"`
	Experience int       `gorm:"not null;default:0" json:"experience"`
	Salary     float64   `gorm:"type:double precision;not null;default:0" json:"salary"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

// TableName pins the table name independent of gorm's naming strategy.
func (Employee) TableName() string { return "employees" }

// Columns is the export header, in display order.
var Columns = []string{"id", "name", "email", "phone", "department", "experience", "salary", "created_at", "updated_at"}

// Record renders e in Columns order.
func (e Employee) Record() []string {
	return []string{
		strconv.FormatInt(e.ID, 10),
		e.Name,
		e.Email,
		e.Phone,
		e.Department,
		strconv.Itoa(e.Experience),
		strconv.FormatFloat(e.Salary, 'f', 2, 64),
		e.CreatedAt.Format(time.RFC3339),
		e.UpdatedAt.Format(time.RFC3339),
	}
}

// Fields are the caller-supplied values for Add and Update.
type Fields struct {
	Name       string  `json:"name" validate:"required"`
	Email      string  `json:"email"`
	Phone      string  `json:"phone"`
	Department string  `json:"department" validate:"required,oneof=HR IT Finance Sales Operations"`
	Experience int     `json:"experience" validate:"min=0"`
	Salary     float64 `json:"salary" validate:"min=0"`
}

func (f *Fields) normalize() error {
	roster.Trim(&f.Name, &f.Email, &f.Phone, &f.Department)
	return roster.Validate(f)
}

// Dashboard aggregates the employee store.
type Dashboard struct {
	Headcount         int64             `json:"headcount"`
	AverageExperience float64           `json:"average_experience"`
	Departments       []DepartmentStats `json:"departments"`
}

// DepartmentStats is one department's slice of the dashboard.
type DepartmentStats struct {
	Department    string  `json:"department"`
	Headcount     int64   `json:"headcount"`
	AverageSalary float64 `json:"average_salary"`
}
