package service

import (
	"context"
	"sync"
	"time"

	"github.com/lisafeets/callguard/internal/domain"
	"github.com/lisafeets/callguard/internal/notify"
	"github.com/lisafeets/callguard/internal/realtime"
	"github.com/lisafeets/callguard/internal/repository"
)

// 测试用内存仓库/渠道桩

var (
	_ repository.ActivityRepository = (*fakeActivityRepo)(nil)
	_ repository.AlertRepository    = (*fakeAlertRepo)(nil)
	_ repository.FamilyRepository   = (*fakeFamilyRepo)(nil)
	_ RealtimePusher                = (*fakePusher)(nil)
	_ notify.Channel                = (*fakeChannel)(nil)
)

type fakeActivityRepo struct {
	mu            sync.Mutex
	calls         []*domain.CallRecord
	conversations []*domain.SmsConversation
	duplicates    int // 模拟被唯一约束吸收的条数

	unknownCalls int
	unknownSMS   int
	countErr     error
	insertErr    error

	summaries  []domain.DailySummary
	summaryErr error

	deletedBefore []time.Time
	deleteErr     error
}

func (f *fakeActivityRepo) InsertCallRecords(_ context.Context, records []*domain.CallRecord) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.calls = append(f.calls, records...)
	return len(records) - f.duplicates, nil
}

func (f *fakeActivityRepo) InsertConversations(_ context.Context, conversations []*domain.SmsConversation) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.conversations = append(f.conversations, conversations...)
	return len(conversations) - f.duplicates, nil
}

func (f *fakeActivityRepo) CountUnknownCallsSince(context.Context, string, time.Time) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.unknownCalls, nil
}

func (f *fakeActivityRepo) SumUnknownSMSMessagesSince(context.Context, string, time.Time) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.unknownSMS, nil
}

func (f *fakeActivityRepo) DailySummary(context.Context, string, time.Time, time.Time) ([]domain.DailySummary, error) {
	if f.summaryErr != nil {
		return nil, f.summaryErr
	}
	return f.summaries, nil
}

func (f *fakeActivityRepo) DeleteActivityOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.deletedBefore = append(f.deletedBefore, cutoff)
	return 3, nil
}

type fakeAlertRepo struct {
	mu      sync.Mutex
	created []*domain.Alert
	sent    []string
	failFor map[string]error // ReceiverID -> CreateAlert 错误
	sentErr error
	deleted []time.Time
	delErr  error
}

func (f *fakeAlertRepo) CreateAlert(_ context.Context, alert *domain.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[alert.ReceiverID]; err != nil {
		return err
	}
	f.created = append(f.created, alert)
	return nil
}

func (f *fakeAlertRepo) MarkSent(_ context.Context, alertID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sentErr != nil {
		return f.sentErr
	}
	f.sent = append(f.sent, alertID)
	return nil
}

func (f *fakeAlertRepo) ListAlertsForReceiver(context.Context, string, int, int) ([]*domain.Alert, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created, len(f.created), nil
}

func (f *fakeAlertRepo) MarkRead(context.Context, string, string) error    { return nil }
func (f *fakeAlertRepo) Acknowledge(context.Context, string, string) error { return nil }

func (f *fakeAlertRepo) DeleteAlertsOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return 0, f.delErr
	}
	f.deleted = append(f.deleted, cutoff)
	return 2, nil
}

type fakeFamilyRepo struct {
	connections []*domain.FamilyConnection
	connErr     error
	hasActive   bool
	prefs       map[string]*domain.NotificationPreferences
	prefsErr    error
}

func (f *fakeFamilyRepo) ActiveConnectionsForSenior(context.Context, string) ([]*domain.FamilyConnection, error) {
	if f.connErr != nil {
		return nil, f.connErr
	}
	return f.connections, nil
}

func (f *fakeFamilyRepo) HasActiveConnection(context.Context, string, string) (bool, error) {
	if f.connErr != nil {
		return false, f.connErr
	}
	return f.hasActive, nil
}

func (f *fakeFamilyRepo) NotificationPreferences(_ context.Context, guardianID string) (*domain.NotificationPreferences, error) {
	if f.prefsErr != nil {
		return nil, f.prefsErr
	}
	if p, ok := f.prefs[guardianID]; ok {
		return p, nil
	}
	return &domain.NotificationPreferences{Push: true}, nil
}

type fakePusher struct {
	mu     sync.Mutex
	pushed map[string][]realtime.Message
}

func newFakePusher() *fakePusher {
	return &fakePusher{pushed: make(map[string][]realtime.Message)}
}

func (f *fakePusher) SendToUser(userID string, msg realtime.Message) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed[userID] = append(f.pushed[userID], msg)
	return 1
}

type fakeChannel struct {
	mu      sync.Mutex
	name    string
	sent    []string // recipient IDs
	sendErr error
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(_ context.Context, _ *domain.Alert, recipientID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, recipientID)
	return nil
}
