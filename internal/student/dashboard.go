package student

import (
	"context"
	"database/sql"
)

// Dashboard computes the aggregate view straight from the tables.
func (r *Repository) Dashboard(ctx context.Context) (Dashboard, error) {
	d := Dashboard{
		ByDepartment:   map[string]int64{},
		ByYear:         map[int]int64{},
		SubjectAverage: []SubjectAverage{},
	}

	rows, err := r.db.Client.QueryContext(ctx, `SELECT status, COUNT(*) FROM students GROUP BY status`)
	if err != nil {
		return Dashboard{}, err
	}
	for rows.Next() {
		var (
			status Status
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return Dashboard{}, err
		}
		switch status {
		case StatusActive:
			d.Active = n
		case StatusInactive:
			d.Inactive = n
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Dashboard{}, err
	}

	rows, err = r.db.Client.QueryContext(ctx, r.db.Rebind(
		`SELECT department, year, COUNT(*) FROM students WHERE status = ? GROUP BY department, year`), StatusActive)
	if err != nil {
		return Dashboard{}, err
	}
	for rows.Next() {
		var (
			dept string
			year int
			n    int64
		)
		if err := rows.Scan(&dept, &year, &n); err != nil {
			rows.Close()
			return Dashboard{}, err
		}
		d.ByDepartment[dept] += n
		d.ByYear[year] += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Dashboard{}, err
	}

	var total int64
	var present sql.NullInt64
	err = r.db.Client.QueryRowContext(ctx, r.db.Rebind(
		`SELECT COUNT(*), SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) FROM attendance`), Present).
		Scan(&total, &present)
	if err != nil {
		return Dashboard{}, err
	}
	if total > 0 {
		d.AttendanceRate = float64(present.Int64) / float64(total)
	}

	rows, err = r.db.Client.QueryContext(ctx, `
		SELECT subject, AVG(CAST(score AS DOUBLE PRECISION)), COUNT(*)
		FROM marks GROUP BY subject ORDER BY subject`)
	if err != nil {
		return Dashboard{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var avg SubjectAverage
		if err := rows.Scan(&avg.Subject, &avg.Average, &avg.Count); err != nil {
			return Dashboard{}, err
		}
		d.SubjectAverage = append(d.SubjectAverage, avg)
	}
	return d, rows.Err()
}
