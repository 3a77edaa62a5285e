package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextSyncState_Transitions(t *testing.T) {
	tests := []struct {
		name       string
		state      SyncState
		outcome    SyncOutcome
		retryCount int
		wantState  SyncState
		wantRetry  int
	}{
		{"pending success", SyncPending, SyncOutcomeSuccess, 0, SyncSynced, 0},
		{"pending first failure", SyncPending, SyncOutcomeFailure, 0, SyncPending, 1},
		{"pending failure below max", SyncPending, SyncOutcomeFailure, 2, SyncPending, 3},
		{"pending failure exceeds max", SyncPending, SyncOutcomeFailure, MaxSyncRetries, SyncFailed, MaxSyncRetries + 1},
		{"failed housekeeping", SyncFailed, SyncOutcomeFailure, 4, SyncAbandoned, 4},
		{"synced is terminal", SyncSynced, SyncOutcomeFailure, 0, SyncSynced, 0},
		{"abandoned is terminal", SyncAbandoned, SyncOutcomeSuccess, 4, SyncAbandoned, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, retry := NextSyncState(tt.state, tt.outcome, tt.retryCount)
			assert.Equal(t, tt.wantState, state)
			assert.Equal(t, tt.wantRetry, retry)
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(SyncPending))
	assert.False(t, Retryable(SyncSynced))
	assert.False(t, Retryable(SyncFailed))
	assert.False(t, Retryable(SyncAbandoned))
}

func TestCallRecordDedupKey_Stable(t *testing.T) {
	a := &CallRecord{OwnerID: "u1", PhoneHash: "abc", Duration: 5}
	b := &CallRecord{OwnerID: "u1", PhoneHash: "abc", Duration: 5}
	b.Timestamp = a.Timestamp
	assert.Equal(t, a.DedupKey(), b.DedupKey())

	b.Duration = 6
	assert.NotEqual(t, a.DedupKey(), b.DedupKey())
}
