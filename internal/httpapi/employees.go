package httpapi

import (
	"bytes"

	"github.com/gin-gonic/gin"

	"roster/internal/employee"
	"roster/internal/roster"
)

func (h *Handler) addEmployee(c *gin.Context) {
	var f employee.Fields
	if err := bindJSON(c, &f); err != nil {
		h.writeError(c, err)
		return
	}
	id, err := h.employees.Add(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	created(c, gin.H{"id": id})
}

func (h *Handler) listEmployees(c *gin.Context) {
	list, err := h.employees.List(c.Request.Context(), roster.FilterFromQuery(c.Request.URL.Query()))
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, list)
}

func (h *Handler) exportEmployeesCSV(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.employees.ExportCSV(c.Request.Context(), &buf, roster.FilterFromQuery(c.Request.URL.Query())); err != nil {
		h.writeError(c, err)
		return
	}
	attachment(c, "employees.csv", "text/csv; charset=utf-8", buf.Bytes())
}

func (h *Handler) employeeDashboard(c *gin.Context) {
	d, err := h.employees.Dashboard(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, d)
}

func (h *Handler) getEmployee(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	e, err := h.employees.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, e)
}

func (h *Handler) updateEmployee(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	var f employee.Fields
	if err := bindJSON(c, &f); err != nil {
		h.writeError(c, err)
		return
	}
	e, err := h.employees.Update(c.Request.Context(), id, f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, e)
}

// removeEmployee is destructive, so the caller must repeat the intent with
// ?confirm=true.
func (h *Handler) removeEmployee(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if c.Query("confirm") != "true" {
		h.writeError(c, roster.Invalid("confirm", "must be true to remove an employee permanently"))
		return
	}
	if err := h.employees.Remove(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, gin.H{"id": id, "removed": true})
}
