package httpapi

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"roster/internal/roster"
	"roster/internal/student"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *Handler) addStudent(c *gin.Context) {
	var f student.Fields
	if err := bindJSON(c, &f); err != nil {
		h.writeError(c, err)
		return
	}
	id, err := h.students.Add(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	created(c, gin.H{"id": id})
}

func (h *Handler) listActiveStudents(c *gin.Context) {
	list, err := h.students.ListActive(c.Request.Context(), roster.FilterFromQuery(c.Request.URL.Query()))
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, list)
}

func (h *Handler) listAllStudents(c *gin.Context) {
	list, err := h.students.ListAll(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, list)
}

func (h *Handler) exportStudentsCSV(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.students.ExportCSV(c.Request.Context(), &buf, roster.FilterFromQuery(c.Request.URL.Query())); err != nil {
		h.writeError(c, err)
		return
	}
	attachment(c, "students.csv", "text/csv; charset=utf-8", buf.Bytes())
}

func (h *Handler) exportStudentsXLSX(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.students.ExportXLSX(c.Request.Context(), &buf, roster.FilterFromQuery(c.Request.URL.Query())); err != nil {
		h.writeError(c, err)
		return
	}
	attachment(c, "students.xlsx", xlsxContentType, buf.Bytes())
}

func (h *Handler) studentDashboard(c *gin.Context) {
	d, err := h.students.Dashboard(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, d)
}

func (h *Handler) importStudents(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(c, tooLarge)
			return
		}
		h.writeError(c, roster.Invalid("file", "is required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer f.Close()

	report, err := h.students.Import(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, report)
}

func (h *Handler) getStudent(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	st, err := h.students.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, st)
}

func (h *Handler) updateStudent(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	var f student.Fields
	if err := bindJSON(c, &f); err != nil {
		h.writeError(c, err)
		return
	}
	st, err := h.students.Update(c.Request.Context(), id, f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, st)
}

func (h *Handler) deactivateStudent(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.students.Deactivate(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, gin.H{"id": id, "status": student.StatusInactive})
}

type attendanceRequest struct {
	Date   string                   `json:"date"`
	Status student.AttendanceStatus `json:"status"`
}

func (h *Handler) recordAttendance(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	var req attendanceRequest
	if err := bindJSON(c, &req); err != nil {
		h.writeError(c, err)
		return
	}
	a, err := h.students.RecordAttendance(c.Request.Context(), id, req.Date, req.Status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	created(c, a)
}

func (h *Handler) listAttendance(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	list, err := h.students.Attendance(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, list)
}

type markRequest struct {
	Subject string `json:"subject"`
	Score   int    `json:"score"`
}

func (h *Handler) recordMarks(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	var req markRequest
	if err := bindJSON(c, &req); err != nil {
		h.writeError(c, err)
		return
	}
	m, err := h.students.RecordMarks(c.Request.Context(), id, req.Subject, req.Score)
	if err != nil {
		h.writeError(c, err)
		return
	}
	created(c, m)
}

func (h *Handler) listMarks(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	list, err := h.students.Marks(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, list)
}
