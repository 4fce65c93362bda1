package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/radiology-findings-pipeline/internal/domain"
)

// findingFilters are the query parameters accepted by the list endpoint,
// mirroring the dashboard's filter controls.
type findingFilters struct {
	PatientID string `form:"patient_id"`
	Critical  string `form:"critical"`
	FollowUp  string `form:"follow_up"`
	Risk      string `form:"risk"`
	From      string `form:"from"`
	To        string `form:"to"`
}

func (s *Server) handleListFindings(c *gin.Context) {
	var filters findingFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var fromDate, toDate time.Time
	var err error
	if filters.From != "" {
		fromDate, err = time.Parse("2006-01-02", filters.From)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date, expected YYYY-MM-DD"})
			return
		}
	}
	if filters.To != "" {
		toDate, err = time.Parse("2006-01-02", filters.To)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date, expected YYYY-MM-DD"})
			return
		}
		// Inclusive upper bound on the calendar day.
		toDate = toDate.Add(24*time.Hour - time.Second)
	}

	records := s.services.Reader.Load(c.Request.Context())

	filtered := make([]*domain.FindingRecord, 0, len(records))
	for _, rec := range records {
		if !matchesFilters(rec, filters, fromDate, toDate) {
			continue
		}
		filtered = append(filtered, rec)
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    len(filtered),
		"findings": filtered,
	})
}

func matchesFilters(rec *domain.FindingRecord, f findingFilters, from, to time.Time) bool {
	if f.PatientID != "" && !strings.Contains(strings.ToLower(rec.PatientID), strings.ToLower(f.PatientID)) {
		return false
	}
	if f.Critical != "" && !yesNoMatches(rec.CriticalFindings, f.Critical) {
		return false
	}
	if f.FollowUp != "" && !yesNoMatches(rec.FollowUp, f.FollowUp) {
		return false
	}
	if f.Risk != "" && !strings.EqualFold(string(rec.RiskLevel), f.Risk) {
		return false
	}
	if !from.IsZero() && rec.ReportTime.Before(from) {
		return false
	}
	if !to.IsZero() && rec.ReportTime.After(to) {
		return false
	}
	return true
}

func yesNoMatches(field *string, want string) bool {
	if field == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(*field), strings.TrimSpace(want))
}

func (s *Server) handleFindingDetail(c *gin.Context) {
	patientID := c.Query("patient_id")
	ts := c.Query("timestamp")
	if patientID == "" || ts == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "patient_id and timestamp are required"})
		return
	}

	for _, rec := range s.services.Reader.Load(c.Request.Context()) {
		if rec.PatientID == patientID && rec.Timestamp == ts {
			c.JSON(http.StatusOK, rec)
			return
		}
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "finding not found"})
}

func (s *Server) handleSummary(c *gin.Context) {
	records := s.services.Reader.Load(c.Request.Context())

	summary := gin.H{
		"total":      len(records),
		"critical":   countYes(records, func(r *domain.FindingRecord) *string { return r.CriticalFindings }),
		"incidental": countYes(records, func(r *domain.FindingRecord) *string { return r.IncidentalFindings }),
		"follow_up":  countYes(records, func(r *domain.FindingRecord) *string { return r.FollowUp }),
	}

	byRisk := map[string]int{}
	for _, rec := range records {
		byRisk[string(rec.RiskLevel)]++
	}
	summary["by_risk"] = byRisk

	c.JSON(http.StatusOK, summary)
}

func countYes(records []*domain.FindingRecord, field func(*domain.FindingRecord) *string) int {
	count := 0
	for _, rec := range records {
		if v := field(rec); v != nil && strings.EqualFold(strings.TrimSpace(*v), "Yes") {
			count++
		}
	}
	return count
}

func (s *Server) handleIngest(c *gin.Context) {
	summary, err := s.services.Ingest.Run(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Error("Ingest run failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleRetry(c *gin.Context) {
	updated, err := s.services.Retry.Retry(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Error("Retry pass failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (s *Server) handleReset(c *gin.Context) {
	if c.Query("confirm") != "true" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reset requires confirm=true"})
		return
	}
	if err := s.services.Store.Reset(c.Request.Context()); err != nil {
		s.log.WithError(err).Error("Store reset failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}
