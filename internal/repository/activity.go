package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lisafeets/callguard/internal/domain"
	"github.com/lisafeets/callguard/internal/risk"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// ActivityRepository 活动记录仓库接口
type ActivityRepository interface {
	InsertCallRecords(ctx context.Context, records []*domain.CallRecord) (int, error)
	InsertConversations(ctx context.Context, conversations []*domain.SmsConversation) (int, error)
	CountUnknownCallsSince(ctx context.Context, ownerID string, since time.Time) (int, error)
	SumUnknownSMSMessagesSince(ctx context.Context, ownerID string, since time.Time) (int, error)
	DailySummary(ctx context.Context, ownerID string, start, end time.Time) ([]domain.DailySummary, error)
	DeleteActivityOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PostgresActivityRepository 活动记录仓库实现
type PostgresActivityRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresActivityRepository 创建活动记录仓库
func NewPostgresActivityRepository(db *sql.DB, logger *zap.Logger) *PostgresActivityRepository {
	return &PostgresActivityRepository{db: db, logger: logger}
}

// 确保实现了接口
var _ ActivityRepository = (*PostgresActivityRepository)(nil)

// InsertCallRecords 幂等写入通话记录
// 去重键 (owner_id, phone_hash, timestamp, duration) 上 ON CONFLICT DO NOTHING：
// 重复上传的记录被静默吸收，不报错、不产生第二行。返回实际写入行数。
func (r *PostgresActivityRepository) InsertCallRecords(ctx context.Context, records []*domain.CallRecord) (int, error) {
	query := `
		INSERT INTO call_records (
			id, owner_id, phone_hash, contact_name, duration, direction,
			timestamp, known_contact, risk_score, risk_factors
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (owner_id, phone_hash, timestamp, duration) DO NOTHING
	`

	inserted := 0
	for _, rec := range records {
		res, err := r.db.ExecContext(ctx, query,
			rec.ID,
			rec.OwnerID,
			rec.PhoneHash,
			rec.ContactName,
			rec.Duration,
			string(rec.Direction),
			rec.Timestamp,
			rec.KnownContact,
			rec.RiskScore,
			pq.Array(rec.RiskFactors),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert call record: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			inserted++
		}
	}
	return inserted, nil
}

// InsertConversations 幂等写入短信会话
// 去重键 (owner_id, phone_hash, thread_id, latest_timestamp)。
func (r *PostgresActivityRepository) InsertConversations(ctx context.Context, conversations []*domain.SmsConversation) (int, error) {
	query := `
		INSERT INTO sms_conversations (
			id, owner_id, phone_hash, thread_id, message_count, direction,
			latest_timestamp, known_contact, risk_score, content_flags, frequency_pattern
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (owner_id, phone_hash, thread_id, latest_timestamp) DO NOTHING
	`

	inserted := 0
	for _, conv := range conversations {
		res, err := r.db.ExecContext(ctx, query,
			conv.ID,
			conv.OwnerID,
			conv.PhoneHash,
			conv.ThreadID,
			conv.MessageCount,
			string(conv.Direction),
			conv.LatestTimestamp,
			conv.KnownContact,
			conv.RiskScore,
			pq.Array(conv.ContentFlags),
			pq.Array(conv.FrequencyPattern),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert sms conversation: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			inserted++
		}
	}
	return inserted, nil
}

// CountUnknownCallsSince 统计窗口内未知联系人的来电数量
func (r *PostgresActivityRepository) CountUnknownCallsSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM call_records
		WHERE owner_id = $1 AND known_contact = false AND timestamp >= $2
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, ownerID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unknown calls: %w", err)
	}
	return count, nil
}

// SumUnknownSMSMessagesSince 统计窗口内未知发送者会话的消息总数
func (r *PostgresActivityRepository) SumUnknownSMSMessagesSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	query := `
		SELECT COALESCE(SUM(message_count), 0) FROM sms_conversations
		WHERE owner_id = $1 AND known_contact = false AND latest_timestamp >= $2
	`
	var sum int
	if err := r.db.QueryRowContext(ctx, query, ownerID, since).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum unknown sms messages: %w", err)
	}
	return sum, nil
}

// DailySummary 按天聚合活动（通话/短信总量、未知来源量、可疑数、平均通话时长）
func (r *PostgresActivityRepository) DailySummary(ctx context.Context, ownerID string, start, end time.Time) ([]domain.DailySummary, error) {
	query := `
		SELECT
			day,
			COALESCE(SUM(total_calls), 0),
			COALESCE(SUM(total_sms), 0),
			COALESCE(SUM(unknown_calls), 0),
			COALESCE(SUM(unknown_sms), 0),
			COALESCE(SUM(suspicious), 0),
			COALESCE(AVG(avg_duration), 0)
		FROM (
			SELECT
				to_char(timestamp, 'YYYY-MM-DD') AS day,
				COUNT(*) AS total_calls,
				0 AS total_sms,
				COUNT(*) FILTER (WHERE NOT known_contact) AS unknown_calls,
				0 AS unknown_sms,
				COUNT(*) FILTER (WHERE risk_score >= $4) AS suspicious,
				AVG(duration) AS avg_duration
			FROM call_records
			WHERE owner_id = $1 AND timestamp >= $2 AND timestamp < $3
			GROUP BY day
			UNION ALL
			SELECT
				to_char(latest_timestamp, 'YYYY-MM-DD') AS day,
				0 AS total_calls,
				COUNT(*) AS total_sms,
				0 AS unknown_calls,
				COUNT(*) FILTER (WHERE NOT known_contact) AS unknown_sms,
				COUNT(*) FILTER (WHERE risk_score >= $4) AS suspicious,
				NULL AS avg_duration
			FROM sms_conversations
			WHERE owner_id = $1 AND latest_timestamp >= $2 AND latest_timestamp < $3
			GROUP BY day
		) activity
		GROUP BY day
		ORDER BY day
	`

	rows, err := r.db.QueryContext(ctx, query, ownerID, start, end, risk.SuspiciousScore)
	if err != nil {
		return nil, fmt.Errorf("daily summary: %w", err)
	}
	defer rows.Close()

	var summaries []domain.DailySummary
	for rows.Next() {
		var s domain.DailySummary
		if err := rows.Scan(
			&s.Date,
			&s.TotalCalls,
			&s.TotalSMS,
			&s.UnknownCalls,
			&s.UnknownSMS,
			&s.SuspiciousCount,
			&s.AvgCallDuration,
		); err != nil {
			return nil, fmt.Errorf("scan daily summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("daily summary rows: %w", err)
	}
	return summaries, nil
}

// DeleteActivityOlderThan 删除窗口外的活动记录（保留任务使用）
// 与并发写入相互独立，可随时运行。
func (r *PostgresActivityRepository) DeleteActivityOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64

	res, err := r.db.ExecContext(ctx, `DELETE FROM call_records WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old call records: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	res, err = r.db.ExecContext(ctx, `DELETE FROM sms_conversations WHERE latest_timestamp < $1`, cutoff)
	if err != nil {
		return total, fmt.Errorf("delete old sms conversations: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	return total, nil
}
