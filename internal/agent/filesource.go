package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FileSource 从 spool 目录读取平台采集器落下的日志事件
//
// 平台侧的采集进程把通话/短信事件按行写成 JSON：
//
//	calls.jsonl    {"number":"+1...","duration":30,"direction":"incoming","timestamp":"..."}
//	sms.jsonl      {"number":"+1...","thread_id":"t1","body":"...","incoming":true,"timestamp":"..."}
//	contacts.json  {"+1...":"Daughter", ...}
//
// 目录不可读按权限被拒处理。
type FileSource struct {
	dir string
}

// NewFileSource 创建 spool 目录读取器
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

var _ ActivitySource = (*FileSource)(nil)

type callEvent struct {
	Number    string    `json:"number"`
	Duration  int64     `json:"duration"`
	Direction string    `json:"direction"`
	Timestamp time.Time `json:"timestamp"`
}

type smsEvent struct {
	Number    string    `json:"number"`
	ThreadID  string    `json:"thread_id"`
	Body      string    `json:"body"`
	Incoming  bool      `json:"incoming"`
	Timestamp time.Time `json:"timestamp"`
}

// ScanCalls 读取 since 之后的通话事件
func (f *FileSource) ScanCalls(_ context.Context, since time.Time) ([]ScannedCall, error) {
	var out []ScannedCall
	err := readLines(filepath.Join(f.dir, "calls.jsonl"), func(line []byte) {
		var ev callEvent
		if json.Unmarshal(line, &ev) != nil || !ev.Timestamp.After(since) {
			return
		}
		out = append(out, ScannedCall{
			Number:    ev.Number,
			Duration:  ev.Duration,
			Direction: ev.Direction,
			Timestamp: ev.Timestamp,
		})
	})
	return out, err
}

// ScanMessages 读取 since 之后的短信事件
func (f *FileSource) ScanMessages(_ context.Context, since time.Time) ([]ScannedMessage, error) {
	var out []ScannedMessage
	err := readLines(filepath.Join(f.dir, "sms.jsonl"), func(line []byte) {
		var ev smsEvent
		if json.Unmarshal(line, &ev) != nil || !ev.Timestamp.After(since) {
			return
		}
		out = append(out, ScannedMessage{
			Number:    ev.Number,
			ThreadID:  ev.ThreadID,
			Body:      ev.Body,
			Incoming:  ev.Incoming,
			Timestamp: ev.Timestamp,
		})
	})
	return out, err
}

// LookupContact 查 contacts.json；文件缺失时一律按未知处理
func (f *FileSource) LookupContact(_ context.Context, number string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(f.dir, "contacts.json"))
	if err != nil {
		return "", false
	}
	var contacts map[string]string
	if json.Unmarshal(data, &contacts) != nil {
		return "", false
	}
	name, ok := contacts[number]
	return name, ok
}

func readLines(path string, fn func(line []byte)) error {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil // 平台侧还没产出事件
	}
	if errors.Is(err, fs.ErrPermission) {
		return ErrPermissionDenied
	}
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) > 0 {
			fn(line)
		}
	}
	return scanner.Err()
}
