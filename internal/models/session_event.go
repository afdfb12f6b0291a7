package models

import (
	"time"

	"gorm.io/gorm"
)

// Event kinds recorded by the update loop.
const (
	KindAcquire = "acquire"
	KindSwap    = "swap"
	KindRelease = "release"
	KindReset   = "reset"
)

// SessionEvent is one grab-session transition, persisted so the
// confirmed-active-hotspot instrumentation survives across runs. A row with
// Verified=false is direct evidence of an observable wrong-hotspot frame.
type SessionEvent struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Timestamp     time.Time      `gorm:"not null;index" json:"timestamp"`
	Kind          string         `gorm:"not null;index" json:"kind"`
	Generation    uint64         `gorm:"not null" json:"generation"`
	HotspotX      uint16         `gorm:"not null" json:"hotspot_x"`
	HotspotY      uint16         `gorm:"not null" json:"hotspot_y"`
	Verified      bool           `gorm:"not null;default:false" json:"verified"`
	LatencyMicros int64          `gorm:"not null;default:0" json:"latency_micros"`
	CreatedAt     time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// KindSummary aggregates session events per transition kind.
type KindSummary struct {
	Kind             string  `json:"kind"`
	EventCount       int64   `json:"event_count"`
	VerifiedCount    int64   `json:"verified_count"`
	AvgLatencyMicros float64 `json:"avg_latency_micros"`
}

// ReportPeriod is the time range a report covers.
type ReportPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Type  string    `json:"type"` // "day", "week", "month"
}

// SessionReport is the aggregate view of grab-session health over a period.
type SessionReport struct {
	Period         ReportPeriod  `json:"period"`
	Kinds          []KindSummary `json:"kinds"`
	TotalEvents    int64         `json:"total_events"`
	VerifiedEvents int64         `json:"verified_events"`
	ErrorCount     int64         `json:"error_count"`
	GeneratedAt    time.Time     `json:"generated_at"`
}
