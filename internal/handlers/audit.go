package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fotoreg/api/internal/models"
	"fotoreg/api/internal/response"
)

func (h HandlerSet) ListAuditLogs(c *gin.Context) {
	page, limit := pageParams(c)
	filter := models.AuditFilter{
		UserID:    c.Query("userId"),
		Action:    c.Query("action"),
		TableName: c.Query("table"),
		DateFrom:  optionalTime(c.Query("dateFrom")),
		DateTo:    optionalTime(c.Query("dateTo")),
	}

	entries, total, err := h.audits.List(c.Request.Context(), filter, limit, (page-1)*limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		payload = append(payload, gin.H{
			"id":        e.ID,
			"userId":    e.UserID,
			"username":  e.Username,
			"action":    e.Action,
			"table":     e.TableName,
			"recordId":  e.RecordID,
			"ipAddress": e.IPAddress,
			"createdAt": e.CreatedAt,
		})
	}
	response.OK(c, "", gin.H{
		"entries":    payload,
		"pagination": paginationFor(page, limit, total),
	})
}

func (h HandlerSet) AuditStats(c *gin.Context) {
	stats, err := h.audits.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	topActions := make([]gin.H, 0, len(stats.TopActions))
	for _, ac := range stats.TopActions {
		topActions = append(topActions, gin.H{"action": ac.Action, "count": ac.Count})
	}
	response.OK(c, "", gin.H{
		"totalEntries": stats.TotalEntries,
		"totalUsers":   stats.TotalUsers,
		"totalActions": stats.TotalActions,
		"firstEntry":   stats.FirstEntry,
		"lastEntry":    stats.LastEntry,
		"topActions":   topActions,
	})
}

// ExportAuditLogs streams the filtered trail as CSV. Pagination does not
// apply; the filter does.
func (h HandlerSet) ExportAuditLogs(c *gin.Context) {
	filter := models.AuditFilter{
		UserID:    c.Query("userId"),
		Action:    c.Query("action"),
		TableName: c.Query("table"),
		DateFrom:  optionalTime(c.Query("dateFrom")),
		DateTo:    optionalTime(c.Query("dateTo")),
	}

	const exportLimit = 50000
	entries, _, err := h.audits.List(c.Request.Context(), filter, exportLimit, 0)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("audit-%s.csv", time.Now().Format("2006-01-02"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	defer w.Flush()

	w.Write([]string{"id", "user_id", "username", "action", "table", "record_id", "ip_address", "user_agent", "created_at"})
	for _, e := range entries {
		userID := ""
		if e.UserID != nil {
			userID = *e.UserID
		}
		w.Write([]string{
			e.ID,
			userID,
			e.Username,
			e.Action,
			e.TableName,
			e.RecordID,
			e.IPAddress,
			e.UserAgent,
			e.CreatedAt.Format(time.RFC3339),
		})
	}
}
