package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lisafeets/callguard/internal/domain"
)

func setupMockAlertDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresAlertRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewPostgresAlertRepository(db, zap.NewNop())
	return db, mock, repo
}

func TestCreateAlert(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	alert := &domain.Alert{
		ID:             uuid.New().String(),
		SenderID:       uuid.New().String(),
		ReceiverID:     uuid.New().String(),
		Type:           domain.AlertFrequentUnknownCalls,
		Severity:       domain.SeverityHigh,
		Title:          "Frequent unknown calls",
		Message:        "10 calls from unknown numbers in the last 24 hours",
		DeliveryStatus: domain.DeliveryPending,
		SentAt:         time.Now(),
	}

	mock.ExpectExec(`INSERT INTO alerts`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CreateAlert(context.Background(), alert))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSent(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	alertID := uuid.New().String()
	sentAt := time.Now()

	mock.ExpectExec(`UPDATE alerts SET delivery_status`).
		WithArgs(string(domain.DeliverySent), sentAt, alertID, string(domain.DeliveryPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkSent(context.Background(), alertID, sentAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRead_NotFound(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE alerts SET delivery_status`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkRead(context.Background(), uuid.New().String(), uuid.New().String())
	assert.ErrorIs(t, err, ErrAlertNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAlertsForReceiver(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	receiver := uuid.New().String()
	sentAt := time.Now()
	readAt := sentAt.Add(time.Minute)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM alerts`).
		WithArgs(receiver).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	rows := sqlmock.NewRows([]string{
		"id", "sender_id", "receiver_id", "type", "severity", "title",
		"message", "metadata", "delivery_status", "sent_at", "read_at", "acknowledged_at",
	}).
		AddRow("a1", "s1", receiver, "suspicious_sms_pattern", "high", "t", "m", nil, "sent", sentAt, nil, nil).
		AddRow("a2", "s1", receiver, "frequent_unknown_calls", "high", "t", "m", "enc", "read", sentAt, readAt, nil)

	mock.ExpectQuery(`SELECT id, sender_id`).
		WithArgs(receiver, 20, 0).
		WillReturnRows(rows)

	alerts, total, err := repo.ListAlertsForReceiver(context.Background(), receiver, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, alerts, 2)
	assert.Nil(t, alerts[0].ReadAt)
	require.NotNil(t, alerts[1].ReadAt)
	assert.Equal(t, readAt.Unix(), alerts[1].ReadAt.Unix())
	require.NotNil(t, alerts[1].Metadata)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcknowledge(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	receiver := uuid.New().String()
	alertID := uuid.New().String()

	mock.ExpectExec(`UPDATE alerts SET delivery_status`).
		WithArgs(string(domain.DeliveryAcknowledged), alertID, receiver).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Acknowledge(context.Background(), receiver, alertID))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAlertsOlderThan(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	cutoff := time.Now().Add(-90 * 24 * time.Hour)
	mock.ExpectExec(`DELETE FROM alerts`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteAlertsOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
