package domain

// SyncState 同步状态
type SyncState string

const (
	SyncPending   SyncState = "pending"
	SyncSynced    SyncState = "synced"
	SyncFailed    SyncState = "failed"
	SyncAbandoned SyncState = "abandoned"
)

// MaxSyncRetries 单条记录上传失败的最大重试次数，超过后标记为 failed
const MaxSyncRetries = 3

// SyncOutcome 一次上传尝试的结果
type SyncOutcome int

const (
	SyncOutcomeSuccess SyncOutcome = iota
	SyncOutcomeFailure
)

// NextSyncState 同步状态机的纯转移函数
//
// pending --success--> synced
// pending --failure--> pending (retryCount+1 仍在上限内)
// pending --failure--> failed  (retryCount+1 超过上限)
// failed  ----------> abandoned (不再参与默认上传)
//
// synced/abandoned are terminal; any outcome leaves them unchanged.
func NextSyncState(state SyncState, outcome SyncOutcome, retryCount int) (SyncState, int) {
	switch state {
	case SyncPending:
		if outcome == SyncOutcomeSuccess {
			return SyncSynced, retryCount
		}
		next := retryCount + 1
		if next > MaxSyncRetries {
			return SyncFailed, next
		}
		return SyncPending, next
	case SyncFailed:
		// Failed records are not retried by the default upload query.
		// A single housekeeping pass may move them to abandoned.
		if outcome == SyncOutcomeFailure {
			return SyncAbandoned, retryCount
		}
		return SyncFailed, retryCount
	default:
		return state, retryCount
	}
}

// Retryable reports whether a record in state is picked up by the default
// upload query.
func Retryable(state SyncState) bool {
	return state == SyncPending
}
