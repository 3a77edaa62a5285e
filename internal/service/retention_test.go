package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSweep_DeletesBothSides(t *testing.T) {
	activityRepo := &fakeActivityRepo{}
	alertRepo := &fakeAlertRepo{}
	svc := NewRetentionService(activityRepo, alertRepo, 30*24*time.Hour, 90*24*time.Hour, time.Hour, zap.NewNop())

	before := time.Now()
	svc.Sweep(context.Background())

	require.Len(t, activityRepo.deletedBefore, 1)
	require.Len(t, alertRepo.deleted, 1)

	activityCutoff := activityRepo.deletedBefore[0]
	alertCutoff := alertRepo.deleted[0]
	assert.WithinDuration(t, before.Add(-30*24*time.Hour), activityCutoff, time.Minute)
	assert.WithinDuration(t, before.Add(-90*24*time.Hour), alertCutoff, time.Minute)
}

func TestSweep_ActivityFailureDoesNotBlockAlerts(t *testing.T) {
	activityRepo := &fakeActivityRepo{deleteErr: assert.AnError}
	alertRepo := &fakeAlertRepo{}
	svc := NewRetentionService(activityRepo, alertRepo, time.Hour, time.Hour, time.Hour, zap.NewNop())

	svc.Sweep(context.Background())
	assert.Len(t, alertRepo.deleted, 1)
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	activityRepo := &fakeActivityRepo{}
	alertRepo := &fakeAlertRepo{}
	svc := NewRetentionService(activityRepo, alertRepo, time.Hour, time.Hour, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("retention loop did not stop")
	}

	activityRepo.mu.Lock()
	sweeps := len(activityRepo.deletedBefore)
	activityRepo.mu.Unlock()
	assert.GreaterOrEqual(t, sweeps, 1)
}
