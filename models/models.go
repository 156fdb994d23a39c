package models

import (
	"time"

	"gorm.io/datatypes"
)

// AnalysisRun is one recorded combined analysis
type AnalysisRun struct {
	ID string `gorm:"primaryKey;type:varchar(36)"`

	// Inputs
	SourceFile string `gorm:"type:varchar(1024);not null"`
	TestFile   string `gorm:"type:varchar(1024);not null"`

	// Summary counts; failed slots count as zero
	TotalGaps      int `gorm:"default:0"`
	TotalTests     int `gorm:"default:0"`
	SecurityIssues int `gorm:"default:0"`

	FailedSlots datatypes.JSONSlice[string] `gorm:"type:json"`
	Report      datatypes.JSON              `gorm:"type:json"` // full combined report

	CreatedAt time.Time `gorm:"autoCreateTime;index"`

	Findings []RunFinding `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// RunFinding is a security finding of a recorded run
type RunFinding struct {
	ID    uint   `gorm:"primaryKey"`
	RunID string `gorm:"type:varchar(36);index;not null"`

	Severity    string `gorm:"type:varchar(10);index"`
	Title       string `gorm:"type:varchar(255)"`
	File        string `gorm:"type:varchar(1024)"`
	Line        int
	Description string `gorm:"type:text"`
}

func (AnalysisRun) TableName() string { return "analysis_runs" }
func (RunFinding) TableName() string  { return "run_findings" }
