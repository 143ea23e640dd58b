package postgres

import (
	"context"
	"errors"
	"fmt"

	"prebidOptimizer/business/job"
	"prebidOptimizer/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResultRepository struct {
	DB *gorm.DB
}

var _ job.ResultRepository = (*ResultRepository)(nil)

func NewResultRepository(db *gorm.DB) *ResultRepository {
	return &ResultRepository{DB: db}
}

func (r *ResultRepository) SaveRun(ctx context.Context, run *domain.OptimizerRun) error {
	if err := run.EncodeActions(); err != nil {
		return err
	}
	err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"insufficient_data", "actions"}),
		}).
		Create(run).Error
	if err != nil {
		return fmt.Errorf("save optimizer run: %w", err)
	}
	return nil
}

func (r *ResultRepository) LatestRun(ctx context.Context, configID string) (*domain.OptimizerRun, error) {
	var run domain.OptimizerRun
	err := r.DB.WithContext(ctx).
		Where("config_id = ?", configID).
		Order("run_timestamp DESC, created_at DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find latest run: %w", err)
	}

	if err := run.DecodeActions(); err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *ResultRepository) ListRuns(ctx context.Context, configID string, limit int) ([]domain.OptimizerRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var runs []domain.OptimizerRun
	err := r.DB.WithContext(ctx).
		Where("config_id = ?", configID).
		Order("run_timestamp DESC, created_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	for i := range runs {
		if err := runs[i].DecodeActions(); err != nil {
			return nil, err
		}
	}
	return runs, nil
}
