package repository

import (
	"context"
	"database/sql"
	"fmt"

	"vitals-compare/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MinuteBucketRepository 分钟聚合结果仓库（PostgreSQL）
type MinuteBucketRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMinuteBucketRepository 创建分钟聚合结果仓库
func NewMinuteBucketRepository(db *sql.DB, logger *zap.Logger) *MinuteBucketRepository {
	return &MinuteBucketRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema 创建 vital_minute_buckets 表（已存在则跳过）
func (r *MinuteBucketRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS vital_minute_buckets (
			session_id           TEXT             NOT NULL,
			source_label         TEXT             NOT NULL,
			source_kind          TEXT             NOT NULL,
			seq                  INTEGER          NOT NULL,
			run_id               UUID             NOT NULL,
			day                  TEXT             NOT NULL DEFAULT '',
			minute_key           TEXT             NOT NULL,
			avg_heart_rate       DOUBLE PRECISION,
			avg_respiration_rate DOUBLE PRECISION,
			samples              INTEGER          NOT NULL,
			evaluable            BOOLEAN          NOT NULL,
			created_at           TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
			PRIMARY KEY (session_id, source_label, seq)
		)
	`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create vital_minute_buckets: %w", err)
	}
	return nil
}

// ReplaceSource 用本次运行的结果替换某个会话、某个输入（label）的全部分钟
// 同一来源类型的多个输入按 label 区分；删除和插入在同一个事务中完成
func (r *MinuteBucketRepository) ReplaceSource(ctx context.Context, runID uuid.UUID, session, label string, kind models.SourceKind, buckets []models.MinuteBucket) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM vital_minute_buckets WHERE session_id = $1 AND source_label = $2`,
		session, label,
	)
	if err != nil {
		return fmt.Errorf("failed to delete previous minute buckets: %w", err)
	}
	if removed, err := res.RowsAffected(); err == nil && removed > 0 {
		r.logger.Debug("Replaced previous minute buckets",
			zap.String("session", session),
			zap.String("label", label),
			zap.Int64("removed", removed),
		)
	}

	query := `
		INSERT INTO vital_minute_buckets (
			session_id,
			source_label,
			source_kind,
			seq,
			run_id,
			day,
			minute_key,
			avg_heart_rate,
			avg_respiration_rate,
			samples,
			evaluable
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	for i, b := range buckets {
		if _, err := tx.ExecContext(ctx, query,
			session,
			label,
			kind.String(),
			i+1,
			runID.String(),
			b.Day,
			b.MinuteKey,
			b.AvgHeartRate,
			b.AvgRespirationRate,
			b.Samples,
			b.Evaluable(),
		); err != nil {
			return fmt.Errorf("failed to insert minute bucket %s: %w", b.Label(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit minute buckets: %w", err)
	}
	return nil
}

// ListSource 按顺序读取某个会话、某个输入（label）的分钟
func (r *MinuteBucketRepository) ListSource(ctx context.Context, session, label string) ([]models.MinuteBucket, error) {
	query := `
		SELECT
			day,
			minute_key,
			avg_heart_rate,
			avg_respiration_rate,
			samples
		FROM vital_minute_buckets
		WHERE session_id = $1 AND source_label = $2
		ORDER BY seq
	`

	rows, err := r.db.QueryContext(ctx, query, session, label)
	if err != nil {
		return nil, fmt.Errorf("failed to query minute buckets: %w", err)
	}
	defer rows.Close()

	var buckets []models.MinuteBucket
	for rows.Next() {
		var (
			b      models.MinuteBucket
			hr, rr sql.NullFloat64
		)
		if err := rows.Scan(&b.Day, &b.MinuteKey, &hr, &rr, &b.Samples); err != nil {
			return nil, fmt.Errorf("failed to scan minute bucket: %w", err)
		}
		if hr.Valid {
			b.AvgHeartRate = models.Float(hr.Float64)
		}
		if rr.Valid {
			b.AvgRespirationRate = models.Float(rr.Float64)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate minute buckets: %w", err)
	}
	return buckets, nil
}
