package reporter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hugo/loupe/internal/config"
	"github.com/hugo/loupe/internal/database"
	"github.com/hugo/loupe/internal/models"
	"github.com/hugo/loupe/pkg/utils"
)

// Reporter generates grab-session health reports from the diagnostics store
type Reporter struct {
	config *config.Config
	repo   *database.Repository
}

// New creates a new reporter
func New(cfg *config.Config, repo *database.Repository) *Reporter {
	return &Reporter{
		config: cfg,
		repo:   repo,
	}
}

// GenerateReport generates a session report for the specified period
func (r *Reporter) GenerateReport(periodType string) (*models.SessionReport, error) {
	period, err := r.getPeriod(periodType)
	if err != nil {
		return nil, err
	}

	summaries, err := r.repo.GetKindSummarySince(period.Start)
	if err != nil {
		return nil, fmt.Errorf("failed to get kind summary: %w", err)
	}

	var totalEvents, verifiedEvents int64
	for _, s := range summaries {
		totalEvents += s.EventCount
		verifiedEvents += s.VerifiedCount
	}

	errorCount, err := r.repo.CountErrorsSince(period.Start)
	if err != nil {
		return nil, fmt.Errorf("failed to count errors: %w", err)
	}

	return &models.SessionReport{
		Period:         *period,
		Kinds:          summaries,
		TotalEvents:    totalEvents,
		VerifiedEvents: verifiedEvents,
		ErrorCount:     errorCount,
		GeneratedAt:    time.Now(),
	}, nil
}

// FormatReportText renders the report for terminal output
func (r *Reporter) FormatReportText(report *models.SessionReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Grab session report (%s)\n", report.Period.Type)
	fmt.Fprintf(&b, "Period: %s - %s\n\n",
		report.Period.Start.Format("2006-01-02 15:04"),
		report.Period.End.Format("2006-01-02 15:04"))

	if report.TotalEvents == 0 {
		b.WriteString("No session events recorded.\n")
		return b.String()
	}

	for _, k := range report.Kinds {
		fmt.Fprintf(&b, "  %-8s %6d events  %5.1f%% verified  avg %s\n",
			k.Kind, k.EventCount,
			utils.Percentage(k.VerifiedCount, k.EventCount),
			utils.FormatLatency(int64(k.AvgLatencyMicros)))
	}

	fmt.Fprintf(&b, "\nTotal: %d events, %.1f%% hotspot-verified, %d recovered errors\n",
		report.TotalEvents,
		utils.Percentage(report.VerifiedEvents, report.TotalEvents),
		report.ErrorCount)

	unverified := report.TotalEvents - report.VerifiedEvents
	if unverified > 0 {
		fmt.Fprintf(&b, "WARNING: %d events failed hotspot verification - an observer may have seen a wrong-hotspot cursor\n", unverified)
	}

	return b.String()
}

// FormatReportJSON renders the report as indented JSON
func (r *Reporter) FormatReportJSON(report *models.SessionReport) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data), nil
}

// getPeriod calculates the time range for the report
func (r *Reporter) getPeriod(periodType string) (*models.ReportPeriod, error) {
	now := time.Now()
	var start time.Time

	switch periodType {
	case "day", "today":
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	case "week":
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		start = day.AddDate(0, 0, -(weekday - 1))

	case "month":
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	default:
		return nil, fmt.Errorf("unknown report period %q (want day, week, or month)", periodType)
	}

	return &models.ReportPeriod{
		Start: start,
		End:   now,
		Type:  periodType,
	}, nil
}
