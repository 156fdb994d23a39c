package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oxhq/testgap/core"
	"github.com/oxhq/testgap/models"
)

// ErrRunNotFound is returned by Get for unknown ids
var ErrRunNotFound = errors.New("analysis run not found")

// Store records combined reports as analysis runs
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn and wraps the connection in a Store
func Open(dsn string, debug bool) (*Store, error) {
	db, err := Connect(dsn, debug)
	if err != nil {
		return nil, err
	}
	return NewStore(db), nil
}

// Record stores report with its security findings and returns the run id
func (s *Store) Record(ctx context.Context, sourcePath, testPath string, report core.CombinedReport) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	run := models.AnalysisRun{
		ID:             id.String(),
		SourceFile:     sourcePath,
		TestFile:       testPath,
		TotalGaps:      report.Summary.TotalGapsDetected,
		TotalTests:     report.Summary.TotalTestsProposed,
		SecurityIssues: report.Summary.SecurityIssues,
		FailedSlots:    datatypes.JSONSlice[string](report.FailedSlots()),
		Report:         datatypes.JSON(payload),
	}
	if findings, ok := report.SecurityScan.Get(); ok {
		for _, f := range findings {
			run.Findings = append(run.Findings, models.RunFinding{
				Severity:    string(f.Severity),
				Title:       f.Title,
				File:        f.File,
				Line:        f.Line,
				Description: f.Description,
			})
		}
	}
	if run.FailedSlots == nil {
		run.FailedSlots = datatypes.JSONSlice[string]{}
	}

	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		return "", fmt.Errorf("record analysis run: %w", err)
	}
	return run.ID, nil
}

// Recent returns up to limit runs, newest first, with their findings
func (s *Store) Recent(ctx context.Context, limit int) ([]models.AnalysisRun, error) {
	if limit <= 0 {
		limit = 10
	}

	var runs []models.AnalysisRun
	err := s.db.WithContext(ctx).
		Preload("Findings").
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("list analysis runs: %w", err)
	}
	return runs, nil
}

// Get loads one run with its findings
func (s *Store) Get(ctx context.Context, id string) (*models.AnalysisRun, error) {
	var run models.AnalysisRun
	err := s.db.WithContext(ctx).Preload("Findings").First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load analysis run: %w", err)
	}
	return &run, nil
}

// Prune deletes all but the newest keep runs and returns how many went.
// Findings are removed explicitly since foreign key enforcement is per
// connection in SQLite.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must not be negative, got %d", keep)
	}

	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&models.AnalysisRun{}).
			Order("created_at DESC").
			Order("id DESC").
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) <= keep {
			return nil
		}
		stale := ids[keep:]

		if err := tx.Where("run_id IN ?", stale).Delete(&models.RunFinding{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", stale).Delete(&models.AnalysisRun{})
		removed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("prune analysis runs: %w", err)
	}
	return removed, nil
}

// Report decodes the stored combined report of run
func Report(run models.AnalysisRun) (core.CombinedReport, error) {
	var report core.CombinedReport
	if err := json.Unmarshal(run.Report, &report); err != nil {
		return core.CombinedReport{}, fmt.Errorf("decode report %s: %w", run.ID, err)
	}
	return report, nil
}

// Close releases the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
