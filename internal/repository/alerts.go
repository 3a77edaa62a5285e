package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lisafeets/callguard/internal/domain"

	"go.uber.org/zap"
)

// ErrAlertNotFound 警报不存在或不属于该接收人
var ErrAlertNotFound = errors.New("alert not found")

// AlertRepository 警报仓库接口
type AlertRepository interface {
	CreateAlert(ctx context.Context, alert *domain.Alert) error
	MarkSent(ctx context.Context, alertID string, sentAt time.Time) error
	ListAlertsForReceiver(ctx context.Context, receiverID string, page, pageSize int) ([]*domain.Alert, int, error)
	MarkRead(ctx context.Context, receiverID, alertID string) error
	Acknowledge(ctx context.Context, receiverID, alertID string) error
	DeleteAlertsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PostgresAlertRepository 警报仓库实现
type PostgresAlertRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresAlertRepository 创建警报仓库
func NewPostgresAlertRepository(db *sql.DB, logger *zap.Logger) *PostgresAlertRepository {
	return &PostgresAlertRepository{db: db, logger: logger}
}

var _ AlertRepository = (*PostgresAlertRepository)(nil)

// CreateAlert 创建一条 pending 警报
func (r *PostgresAlertRepository) CreateAlert(ctx context.Context, alert *domain.Alert) error {
	query := `
		INSERT INTO alerts (
			id, sender_id, receiver_id, type, severity, title, message,
			metadata, delivery_status, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		alert.ID,
		alert.SenderID,
		alert.ReceiverID,
		string(alert.Type),
		string(alert.Severity),
		alert.Title,
		alert.Message,
		alert.Metadata,
		string(alert.DeliveryStatus),
		alert.SentAt,
	)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

// MarkSent 所有渠道尝试完成后标记已发送
func (r *PostgresAlertRepository) MarkSent(ctx context.Context, alertID string, sentAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET delivery_status = $1, sent_at = $2 WHERE id = $3 AND delivery_status = $4`,
		string(domain.DeliverySent), sentAt, alertID, string(domain.DeliveryPending),
	)
	if err != nil {
		return fmt.Errorf("mark alert sent: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// ListAlertsForReceiver 分页查询接收人的警报（新的在前），返回总数用于分页
func (r *PostgresAlertRepository) ListAlertsForReceiver(ctx context.Context, receiverID string, page, pageSize int) ([]*domain.Alert, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alerts WHERE receiver_id = $1`, receiverID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	query := `
		SELECT id, sender_id, receiver_id, type, severity, title, message,
		       metadata, delivery_status, sent_at, read_at, acknowledged_at
		FROM alerts
		WHERE receiver_id = $1
		ORDER BY sent_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, receiverID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		var a domain.Alert
		var metadata sql.NullString
		var readAt, ackedAt sql.NullTime
		if err := rows.Scan(
			&a.ID, &a.SenderID, &a.ReceiverID, &a.Type, &a.Severity,
			&a.Title, &a.Message, &metadata, &a.DeliveryStatus,
			&a.SentAt, &readAt, &ackedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan alert: %w", err)
		}
		if metadata.Valid {
			a.Metadata = &metadata.String
		}
		if readAt.Valid {
			t := readAt.Time
			a.ReadAt = &t
		}
		if ackedAt.Valid {
			t := ackedAt.Time
			a.AcknowledgedAt = &t
		}
		alerts = append(alerts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list alerts rows: %w", err)
	}
	return alerts, total, nil
}

// MarkRead 接收人标记已读
func (r *PostgresAlertRepository) MarkRead(ctx context.Context, receiverID, alertID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET delivery_status = $1, read_at = NOW()
		 WHERE id = $2 AND receiver_id = $3 AND read_at IS NULL`,
		string(domain.DeliveryRead), alertID, receiverID,
	)
	if err != nil {
		return fmt.Errorf("mark alert read: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// Acknowledge 接收人确认警报
func (r *PostgresAlertRepository) Acknowledge(ctx context.Context, receiverID, alertID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET delivery_status = $1, acknowledged_at = NOW()
		 WHERE id = $2 AND receiver_id = $3 AND acknowledged_at IS NULL`,
		string(domain.DeliveryAcknowledged), alertID, receiverID,
	)
	if err != nil {
		return fmt.Errorf("acknowledge alert: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// DeleteAlertsOlderThan 删除保留窗口外的警报
func (r *PostgresAlertRepository) DeleteAlertsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE sent_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old alerts: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
