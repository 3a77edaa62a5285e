package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lisafeets/callguard/internal/domain"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// FamilyRepository 家庭关系仓库接口
type FamilyRepository interface {
	ActiveConnectionsForSenior(ctx context.Context, seniorID string) ([]*domain.FamilyConnection, error)
	HasActiveConnection(ctx context.Context, guardianID, seniorID string) (bool, error)
	NotificationPreferences(ctx context.Context, guardianID string) (*domain.NotificationPreferences, error)
}

// PostgresFamilyRepository 家庭关系仓库实现
type PostgresFamilyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresFamilyRepository 创建家庭关系仓库
func NewPostgresFamilyRepository(db *sql.DB, logger *zap.Logger) *PostgresFamilyRepository {
	return &PostgresFamilyRepository{db: db, logger: logger}
}

var _ FamilyRepository = (*PostgresFamilyRepository)(nil)

// ActiveConnectionsForSenior 查询某 senior 的全部 active 关系
// 只有 active 关系参与警报分发；terminated/suspended/pending 一律排除。
func (r *PostgresFamilyRepository) ActiveConnectionsForSenior(ctx context.Context, seniorID string) ([]*domain.FamilyConnection, error) {
	query := `
		SELECT id, senior_id, guardian_id, status, permissions
		FROM family_connections
		WHERE senior_id = $1 AND status = $2
	`
	rows, err := r.db.QueryContext(ctx, query, seniorID, string(domain.ConnectionActive))
	if err != nil {
		return nil, fmt.Errorf("active connections: %w", err)
	}
	defer rows.Close()

	var connections []*domain.FamilyConnection
	for rows.Next() {
		var c domain.FamilyConnection
		var permissions pq.StringArray
		if err := rows.Scan(&c.ID, &c.SeniorID, &c.GuardianID, &c.Status, &permissions); err != nil {
			return nil, fmt.Errorf("scan family connection: %w", err)
		}
		c.Permissions = permissions
		connections = append(connections, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("active connections rows: %w", err)
	}
	return connections, nil
}

// HasActiveConnection guardian 是否对该 senior 有 active 关系（summary 访问门禁）
func (r *PostgresFamilyRepository) HasActiveConnection(ctx context.Context, guardianID, seniorID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM family_connections
			WHERE guardian_id = $1 AND senior_id = $2 AND status = $3
		)`,
		guardianID, seniorID, string(domain.ConnectionActive),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has active connection: %w", err)
	}
	return exists, nil
}

// NotificationPreferences 查询监护人的通知渠道偏好；没有记录时返回仅 push 的默认值
func (r *PostgresFamilyRepository) NotificationPreferences(ctx context.Context, guardianID string) (*domain.NotificationPreferences, error) {
	var prefs domain.NotificationPreferences
	err := r.db.QueryRowContext(ctx,
		`SELECT email_enabled, sms_enabled, push_enabled
		 FROM notification_preferences WHERE user_id = $1`,
		guardianID,
	).Scan(&prefs.Email, &prefs.SMS, &prefs.Push)
	if err == sql.ErrNoRows {
		return &domain.NotificationPreferences{Push: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("notification preferences: %w", err)
	}
	return &prefs, nil
}
