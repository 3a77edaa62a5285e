package agent

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lisafeets/callguard/internal/domain"
	"github.com/lisafeets/callguard/internal/service"

	_ "github.com/mattn/go-sqlite3"
)

// QueuedCall 本地队列里的一条通话记录
type QueuedCall struct {
	ID         string
	Upload     service.CallRecordUpload
	State      domain.SyncState
	RetryCount int
}

// QueuedConversation 本地队列里的一条短信会话
type QueuedConversation struct {
	ID         string
	Upload     service.SmsConversationUpload
	State      domain.SyncState
	RetryCount int
}

// Store 设备本地的 sqlite 上传队列
// 记录在上传确认前一直留在队列里；断网期间只积压，不丢失。
type Store struct {
	db *sql.DB
}

// OpenStore 打开（或创建）本地队列数据库
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}
	// 单写者；sqlite 在并发写下需要串行化
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS call_queue (
	id            TEXT PRIMARY KEY,
	phone         TEXT NOT NULL,
	contact_name  TEXT,
	duration      INTEGER NOT NULL,
	direction     TEXT NOT NULL,
	timestamp     TEXT NOT NULL,
	known_contact INTEGER NOT NULL,
	state         TEXT NOT NULL DEFAULT 'pending',
	retry_count   INTEGER NOT NULL DEFAULT 0,
	created_at    TEXT NOT NULL,
	UNIQUE(phone, timestamp, duration)
);
CREATE TABLE IF NOT EXISTS sms_queue (
	id               TEXT PRIMARY KEY,
	phone            TEXT NOT NULL,
	thread_id        TEXT NOT NULL,
	message_count    INTEGER NOT NULL,
	direction        TEXT NOT NULL,
	latest_timestamp TEXT NOT NULL,
	known_contact    INTEGER NOT NULL,
	inbound_only     INTEGER NOT NULL,
	content_flags    TEXT NOT NULL DEFAULT '[]',
	state            TEXT NOT NULL DEFAULT 'pending',
	retry_count      INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL,
	UNIQUE(phone, thread_id, latest_timestamp)
);
CREATE INDEX IF NOT EXISTS idx_call_queue_state ON call_queue(state);
CREATE INDEX IF NOT EXISTS idx_sms_queue_state ON sms_queue(state);
`)
	if err != nil {
		return fmt.Errorf("migrate queue db: %w", err)
	}
	return nil
}

// Close 关闭底层数据库
func (s *Store) Close() error { return s.db.Close() }

// EnqueueCalls 入队一批通话记录；重复扫描到的记录被唯一约束吸收
func (s *Store) EnqueueCalls(ctx context.Context, calls []QueuedCall) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin enqueue: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	now := time.Now().UTC().Format(time.RFC3339)
	for _, c := range calls {
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO call_queue
				(id, phone, contact_name, duration, direction, timestamp, known_contact, state, retry_count, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', 0, ?)`,
			c.ID, c.Upload.Phone, c.Upload.ContactName, c.Upload.Duration,
			c.Upload.Direction, c.Upload.Timestamp, boolToInt(c.Upload.KnownContact), now,
		)
		if err != nil {
			return 0, fmt.Errorf("enqueue call: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit enqueue: %w", err)
	}
	return inserted, nil
}

// EnqueueConversations 入队一批短信会话
func (s *Store) EnqueueConversations(ctx context.Context, conversations []QueuedConversation) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin enqueue: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	now := time.Now().UTC().Format(time.RFC3339)
	for _, c := range conversations {
		flags, err := json.Marshal(c.Upload.ContentFlags)
		if err != nil {
			return 0, fmt.Errorf("marshal content flags: %w", err)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO sms_queue
				(id, phone, thread_id, message_count, direction, latest_timestamp, known_contact, inbound_only, content_flags, state, retry_count, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', 0, ?)`,
			c.ID, c.Upload.Phone, c.Upload.ThreadID, c.Upload.MessageCount,
			c.Upload.Direction, c.Upload.LatestTimestamp, boolToInt(c.Upload.KnownContact),
			boolToInt(&c.Upload.InboundOnly), string(flags), now,
		)
		if err != nil {
			return 0, fmt.Errorf("enqueue conversation: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit enqueue: %w", err)
	}
	return inserted, nil
}

// PendingCalls 取一批待上传的通话记录（按入队顺序）
func (s *Store) PendingCalls(ctx context.Context, limit int) ([]QueuedCall, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, phone, contact_name, duration, direction, timestamp, known_contact, retry_count
		FROM call_queue WHERE state = 'pending' ORDER BY created_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending calls: %w", err)
	}
	defer rows.Close()

	var out []QueuedCall
	for rows.Next() {
		var q QueuedCall
		var contactName sql.NullString
		var known int
		if err := rows.Scan(&q.ID, &q.Upload.Phone, &contactName, &q.Upload.Duration,
			&q.Upload.Direction, &q.Upload.Timestamp, &known, &q.RetryCount); err != nil {
			return nil, fmt.Errorf("scan pending call: %w", err)
		}
		if contactName.Valid {
			q.Upload.ContactName = &contactName.String
		}
		kc := known != 0
		q.Upload.KnownContact = &kc
		q.State = domain.SyncPending
		out = append(out, q)
	}
	return out, rows.Err()
}

// PendingConversations 取一批待上传的短信会话
func (s *Store) PendingConversations(ctx context.Context, limit int) ([]QueuedConversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, phone, thread_id, message_count, direction, latest_timestamp, known_contact, inbound_only, content_flags, retry_count
		FROM sms_queue WHERE state = 'pending' ORDER BY created_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending conversations: %w", err)
	}
	defer rows.Close()

	var out []QueuedConversation
	for rows.Next() {
		var q QueuedConversation
		var known, inboundOnly int
		var flags string
		if err := rows.Scan(&q.ID, &q.Upload.Phone, &q.Upload.ThreadID, &q.Upload.MessageCount,
			&q.Upload.Direction, &q.Upload.LatestTimestamp, &known, &inboundOnly, &flags, &q.RetryCount); err != nil {
			return nil, fmt.Errorf("scan pending conversation: %w", err)
		}
		kc := known != 0
		q.Upload.KnownContact = &kc
		q.Upload.InboundOnly = inboundOnly != 0
		if err := json.Unmarshal([]byte(flags), &q.Upload.ContentFlags); err != nil {
			q.Upload.ContentFlags = nil
		}
		q.State = domain.SyncPending
		out = append(out, q)
	}
	return out, rows.Err()
}

// MarkCallOutcome 按状态机推进一批通话记录的同步状态
func (s *Store) MarkCallOutcome(ctx context.Context, calls []QueuedCall, outcome domain.SyncOutcome) error {
	return s.markOutcome(ctx, "call_queue", callIDs(calls), callRetries(calls), outcome)
}

// MarkConversationOutcome 按状态机推进一批短信会话的同步状态
func (s *Store) MarkConversationOutcome(ctx context.Context, conversations []QueuedConversation, outcome domain.SyncOutcome) error {
	ids := make([]string, len(conversations))
	retries := make([]int, len(conversations))
	for i, c := range conversations {
		ids[i] = c.ID
		retries[i] = c.RetryCount
	}
	return s.markOutcome(ctx, "sms_queue", ids, retries, outcome)
}

func (s *Store) markOutcome(ctx context.Context, table string, ids []string, retries []int, outcome domain.SyncOutcome) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark outcome: %w", err)
	}
	defer tx.Rollback()

	stmt := fmt.Sprintf("UPDATE %s SET state = ?, retry_count = ? WHERE id = ?", table)
	for i, id := range ids {
		next, retryCount := domain.NextSyncState(domain.SyncPending, outcome, retries[i])
		if _, err := tx.ExecContext(ctx, stmt, string(next), retryCount, id); err != nil {
			return fmt.Errorf("mark outcome: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark outcome: %w", err)
	}
	return nil
}

// AbandonFailed 把 failed 记录推进到 abandoned（不再参与默认上传）
func (s *Store) AbandonFailed(ctx context.Context) (int64, error) {
	var total int64
	for _, table := range []string{"call_queue", "sms_queue"} {
		res, err := s.db.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET state = 'abandoned' WHERE state = 'failed'", table))
		if err != nil {
			return total, fmt.Errorf("abandon failed rows: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// PruneSynced 删除已确认上传且早于 cutoff 的队列行，控制本地数据库体积
func (s *Store) PruneSynced(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	cut := cutoff.UTC().Format(time.RFC3339)
	for _, table := range []string{"call_queue", "sms_queue"} {
		res, err := s.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE state = 'synced' AND created_at < ?", table), cut)
		if err != nil {
			return total, fmt.Errorf("prune synced rows: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func callIDs(calls []QueuedCall) []string {
	ids := make([]string, len(calls))
	for i, c := range calls {
		ids[i] = c.ID
	}
	return ids
}

func callRetries(calls []QueuedCall) []int {
	retries := make([]int, len(calls))
	for i, c := range calls {
		retries[i] = c.RetryCount
	}
	return retries
}

func boolToInt(b *bool) int {
	if b != nil && *b {
		return 1
	}
	return 0
}
