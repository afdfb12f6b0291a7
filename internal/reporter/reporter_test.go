package reporter

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hugo/loupe/internal/config"
	"github.com/hugo/loupe/internal/database"
	"github.com/hugo/loupe/internal/models"
)

func testReporter(t *testing.T) (*Reporter, *database.Repository) {
	t.Helper()
	db, err := database.Connect(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Initialize(); err != nil {
		t.Fatalf("initializing schema: %v", err)
	}
	repo := database.NewRepository(db)
	return New(config.Default(), repo), repo
}

func TestGenerateReport(t *testing.T) {
	r, repo := testReporter(t)
	now := time.Now()

	events := []*models.SessionEvent{
		{Timestamp: now.Add(-time.Minute), Kind: models.KindAcquire, Generation: 1, HotspotX: 127, HotspotY: 127, Verified: true, LatencyMicros: 2000},
		{Timestamp: now.Add(-30 * time.Second), Kind: models.KindSwap, Generation: 2, HotspotX: 127, HotspotY: 127, Verified: true, LatencyMicros: 1000},
		{Timestamp: now.Add(-10 * time.Second), Kind: models.KindSwap, Generation: 3, HotspotX: 127, HotspotY: 127, Verified: false, LatencyMicros: 3000},
	}
	for _, ev := range events {
		if err := repo.Create(ev); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}
	if err := repo.CreateErrorLog(&models.ErrorLog{Timestamp: now, Component: "grab", ErrorMsg: "denied"}); err != nil {
		t.Fatalf("CreateErrorLog() error: %v", err)
	}

	report, err := r.GenerateReport("day")
	if err != nil {
		t.Fatalf("GenerateReport() error: %v", err)
	}

	if report.TotalEvents != 3 {
		t.Errorf("total events = %d, want 3", report.TotalEvents)
	}
	if report.VerifiedEvents != 2 {
		t.Errorf("verified events = %d, want 2", report.VerifiedEvents)
	}
	if report.ErrorCount != 1 {
		t.Errorf("error count = %d, want 1", report.ErrorCount)
	}
	if report.Period.Type != "day" {
		t.Errorf("period type = %q, want day", report.Period.Type)
	}
}

func TestGenerateReportUnknownPeriod(t *testing.T) {
	r, _ := testReporter(t)
	if _, err := r.GenerateReport("fortnight"); err == nil {
		t.Fatal("GenerateReport(fortnight) = nil, want error")
	}
}

func TestGenerateReportPeriodStarts(t *testing.T) {
	r, _ := testReporter(t)
	now := time.Now()

	day, err := r.GenerateReport("day")
	if err != nil {
		t.Fatalf("GenerateReport(day) error: %v", err)
	}
	if day.Period.Start.Hour() != 0 || day.Period.Start.Day() != now.Day() {
		t.Errorf("day period starts %v, want midnight today", day.Period.Start)
	}

	week, err := r.GenerateReport("week")
	if err != nil {
		t.Fatalf("GenerateReport(week) error: %v", err)
	}
	if week.Period.Start.Weekday() != time.Monday {
		t.Errorf("week period starts on %v, want Monday", week.Period.Start.Weekday())
	}

	month, err := r.GenerateReport("month")
	if err != nil {
		t.Fatalf("GenerateReport(month) error: %v", err)
	}
	if month.Period.Start.Day() != 1 {
		t.Errorf("month period starts on day %d, want 1", month.Period.Start.Day())
	}
}

func TestFormatReportText(t *testing.T) {
	r, _ := testReporter(t)
	now := time.Now()

	report := &models.SessionReport{
		Period: models.ReportPeriod{Start: now.Add(-time.Hour), End: now, Type: "day"},
		Kinds: []models.KindSummary{
			{Kind: models.KindSwap, EventCount: 10, VerifiedCount: 9, AvgLatencyMicros: 1500},
			{Kind: models.KindAcquire, EventCount: 1, VerifiedCount: 1, AvgLatencyMicros: 4000},
		},
		TotalEvents:    11,
		VerifiedEvents: 10,
		ErrorCount:     2,
		GeneratedAt:    now,
	}

	text := r.FormatReportText(report)

	for _, want := range []string{"swap", "acquire", "10 events", "11 events", "2 recovered errors", "1.5ms"} {
		if !strings.Contains(text, want) {
			t.Errorf("report text missing %q:\n%s", want, text)
		}
	}
	if !strings.Contains(text, "WARNING") {
		t.Errorf("report with unverified events missing warning:\n%s", text)
	}
}

func TestFormatReportTextFullyVerified(t *testing.T) {
	r, _ := testReporter(t)
	now := time.Now()

	report := &models.SessionReport{
		Period:         models.ReportPeriod{Start: now.Add(-time.Hour), End: now, Type: "day"},
		Kinds:          []models.KindSummary{{Kind: models.KindSwap, EventCount: 5, VerifiedCount: 5, AvgLatencyMicros: 900}},
		TotalEvents:    5,
		VerifiedEvents: 5,
		GeneratedAt:    now,
	}

	text := r.FormatReportText(report)
	if strings.Contains(text, "WARNING") {
		t.Errorf("fully verified report should carry no warning:\n%s", text)
	}
}

func TestFormatReportTextEmpty(t *testing.T) {
	r, _ := testReporter(t)
	now := time.Now()

	report := &models.SessionReport{
		Period:      models.ReportPeriod{Start: now.Add(-time.Hour), End: now, Type: "week"},
		GeneratedAt: now,
	}

	text := r.FormatReportText(report)
	if !strings.Contains(text, "No session events recorded") {
		t.Errorf("empty report text = %q", text)
	}
}

func TestFormatReportJSON(t *testing.T) {
	r, _ := testReporter(t)
	now := time.Now()

	report := &models.SessionReport{
		Period:      models.ReportPeriod{Start: now.Add(-time.Hour), End: now, Type: "day"},
		TotalEvents: 3,
		GeneratedAt: now,
	}

	out, err := r.FormatReportJSON(report)
	if err != nil {
		t.Fatalf("FormatReportJSON() error: %v", err)
	}

	var decoded models.SessionReport
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("report JSON does not parse: %v", err)
	}
	if decoded.TotalEvents != 3 || decoded.Period.Type != "day" {
		t.Errorf("decoded report = %+v", decoded)
	}
}
