package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// CREATE TABLE public.optimizer_runs (
//     id                UUID PRIMARY KEY,
//     config_id         TEXT NOT NULL,
//     env               TEXT NOT NULL,
//     model_type        TEXT NOT NULL,
//     bucket_size       INT NOT NULL,
//     run_timestamp     TIMESTAMPTZ NOT NULL,
//     start_timestamp   TIMESTAMPTZ NOT NULL,
//     end_timestamp     TIMESTAMPTZ NOT NULL,
//     insufficient_data BOOLEAN NOT NULL DEFAULT FALSE,
//     actions           JSONB NOT NULL,
//     created_at        TIMESTAMPTZ DEFAULT NOW()
// );

type OptimizerRun struct {
	ID               uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ConfigID         string         `gorm:"column:config_id;not null;index" json:"config_id"`
	Env              string         `gorm:"column:env;not null" json:"env"`
	ModelType        string         `gorm:"column:model_type;not null" json:"model_type"`
	BucketSize       int            `gorm:"column:bucket_size;not null" json:"bucket_size"`
	RunTimestamp     time.Time      `gorm:"column:run_timestamp;not null" json:"run_timestamp"`
	StartTimestamp   time.Time      `gorm:"column:start_timestamp;not null" json:"start_timestamp"`
	EndTimestamp     time.Time      `gorm:"column:end_timestamp;not null" json:"end_timestamp"`
	InsufficientData bool           `gorm:"column:insufficient_data;not null;default:false" json:"insufficient_data"`
	ActionsRaw       datatypes.JSON `gorm:"column:actions;type:jsonb;not null" json:"-"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`

	Actions []ActionResult `gorm:"-" json:"actions"`
}

func (OptimizerRun) TableName() string {
	return "optimizer_runs"
}

// EncodeActions serializes Actions into the jsonb column.
func (r *OptimizerRun) EncodeActions() error {
	raw, err := json.Marshal(r.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}
	r.ActionsRaw = raw
	return nil
}

// DecodeActions fills Actions from the jsonb column.
func (r *OptimizerRun) DecodeActions() error {
	if len(r.ActionsRaw) == 0 {
		r.Actions = nil
		return nil
	}
	if err := json.Unmarshal(r.ActionsRaw, &r.Actions); err != nil {
		return fmt.Errorf("unmarshal actions: %w", err)
	}
	return nil
}

// Distributions returns the run's result in optimizer form.
func (r OptimizerRun) Distributions() Distributions {
	return Distributions{Actions: r.Actions, InsufficientData: r.InsufficientData}
}
