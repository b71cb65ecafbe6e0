// Package history persists a summary of every finished run in a local
// SQLite database.
package history

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"usmconv/internal/pipeline"
	"usmconv/internal/util"
)

// Run is one stored run.
type Run struct {
	ID         uint      `gorm:"primaryKey" json:"-" yaml:"-"`
	RunID      string    `gorm:"uniqueIndex;size:36" json:"run_id" yaml:"run_id"`
	Mode       string    `gorm:"size:16" json:"mode" yaml:"mode"`
	Input      string    `json:"input" yaml:"input"`
	Output     string    `json:"output" yaml:"output"`
	Phase      string    `gorm:"size:32;index" json:"phase" yaml:"phase"`
	Codec      string    `gorm:"size:16" json:"codec,omitempty" yaml:"codec,omitempty"`
	Verdict    string    `gorm:"size:16" json:"verdict,omitempty" yaml:"verdict,omitempty"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt  time.Time `gorm:"index" json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}

// Elapsed is the wall time of the run.
func (r Run) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store records runs. It satisfies pipeline.Recorder.
type Store struct {
	db  *gorm.DB
	log hclog.Logger
}

// Open opens (creating if needed) the database at path and migrates it.
// ":memory:" opens a private in-memory database.
func Open(path string, log hclog.Logger) (*Store, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if path != ":memory:" {
		if err := util.EnsureDir(filepath.Dir(path)); err != nil {
			return nil, fmt.Errorf("history dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Run{}); err != nil {
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return &Store{db: db, log: log.Named("history")}, nil
}

// Record stores s.
func (s *Store) Record(ctx context.Context, sum pipeline.Summary) error {
	r := Run{
		RunID:      sum.RunID,
		Mode:       sum.Mode.String(),
		Input:      sum.Input,
		Output:     sum.Output,
		Phase:      string(sum.Phase),
		Codec:      string(sum.Codec),
		Verdict:    string(sum.Verdict),
		StartedAt:  sum.Started,
		FinishedAt: sum.Finished,
	}
	if sum.Err != nil {
		r.Error = sum.Err.Error()
	}
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return fmt.Errorf("record run %s: %w", sum.RunID, err)
	}
	s.log.Debug("recorded run", "run", sum.RunID, "phase", sum.Phase)
	return nil
}

// Filter narrows List.
type Filter struct {
	Limit      int    // 0 means all
	FailedOnly bool
	Mode       string // empty matches every mode
}

// List returns stored runs, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Run, error) {
	q := s.db.WithContext(ctx).Model(&Run{}).Order("started_at DESC, id DESC")
	if f.FailedOnly {
		q = q.Where("error <> ''")
	}
	if f.Mode != "" {
		q = q.Where("mode = ?", f.Mode)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var runs []Run
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// Prune deletes runs that finished before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("finished_at < ?", cutoff).Delete(&Run{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune runs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
