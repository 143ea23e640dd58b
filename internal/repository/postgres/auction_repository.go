package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"prebidOptimizer/business/optimizer"
	"prebidOptimizer/domain"

	"gorm.io/gorm"
)

type AuctionRepository struct {
	DB *gorm.DB
	// MaxSessionSeconds drops auctions from sessions at least this long, or
	// without a sessionSeconds field. Zero disables the filter.
	MaxSessionSeconds int
}

var _ optimizer.DataSource = (*AuctionRepository)(nil)

func NewAuctionRepository(db *gorm.DB, maxSessionSeconds int) *AuctionRepository {
	return &AuctionRepository{DB: db, MaxSessionSeconds: maxSessionSeconds}
}

type auctionRow struct {
	AuctionHour     int     `gorm:"column:auction_hour"`
	OptimizerConfig []byte  `gorm:"column:optimizer_config"`
	Win             int16   `gorm:"column:win"`
	PubRev          float64 `gorm:"column:pubrev"`
}

const auctionQuery = `
SELECT
    FLOOR(EXTRACT(EPOCH FROM (receipt_time - @start)) / 3600)::int AS auction_hour,
    optimizer_config,
    win,
    pubrev
FROM auction_outcomes
WHERE config_id = @config_id
    AND receipt_time >= @start
    AND receipt_time < @end`

const sessionFilter = `
    AND optimizer_config->>'sessionSeconds' IS NOT NULL
    AND (optimizer_config->>'sessionSeconds')::numeric < @max_session`

func (r *AuctionRepository) FetchObservations(ctx context.Context, configID string, keys []string, start, end time.Time) ([]domain.Observation, error) {
	query := auctionQuery
	args := map[string]any{
		"config_id": configID,
		"start":     start.UTC(),
		"end":       end.UTC(),
	}
	if r.MaxSessionSeconds > 0 {
		query += sessionFilter
		args["max_session"] = r.MaxSessionSeconds
	}

	rows, err := r.DB.WithContext(ctx).Raw(query, args).Rows()
	if err != nil {
		return nil, fmt.Errorf("query auction outcomes: %w", err)
	}
	defer rows.Close()

	var out []domain.Observation
	for rows.Next() {
		var row auctionRow
		if err := r.DB.ScanRows(rows, &row); err != nil {
			return nil, fmt.Errorf("scan auction outcome: %w", err)
		}
		cfg, err := decodeOptimizerConfig(row.OptimizerConfig, keys)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Observation{
			AuctionHour: row.AuctionHour,
			Config:      cfg,
			Win:         row.Win == 1,
			PubRev:      row.PubRev,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate auction outcomes: %w", err)
	}

	return out, nil
}

// decodeOptimizerConfig picks the tunable keys out of the optimizer_config
// document. Values may be stored bare or wrapped as {"n": value}. Integral
// numbers decode to int64, other numbers to float64.
func decodeOptimizerConfig(raw []byte, keys []string) (map[string]any, error) {
	out := make(map[string]any, len(keys))
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode optimizer_config: %w", err)
	}

	for _, k := range keys {
		v, ok := doc[k]
		if !ok {
			continue
		}
		if wrapped, ok := v.(map[string]any); ok {
			if n, ok := wrapped["n"]; ok {
				v = n
			}
		}
		out[k] = normalizeJSONValue(v)
	}
	return out, nil
}

func normalizeJSONValue(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if !strings.ContainsAny(n.String(), ".eE") {
		if i, err := n.Int64(); err == nil {
			return i
		}
	}
	if f, err := n.Float64(); err == nil {
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	}
	return n.String()
}
