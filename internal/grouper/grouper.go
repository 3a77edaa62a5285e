// Package grouper folds raw SMS events into per-counterpart conversations.
package grouper

import (
	"sort"
	"time"
)

// RawMessage 采集到的单条短信事件
type RawMessage struct {
	Counterpart string    // 对端号码（原始格式）
	ThreadID    string
	Body        string
	Incoming    bool
	Timestamp   time.Time
}

// Direction 会话主方向
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
	DirectionMixed    Direction = "mixed"
)

// Conversation 按 (counterpart, thread) 归组后的会话
type Conversation struct {
	Counterpart string
	ThreadID    string
	Messages    []RawMessage // 按时间升序
	Direction   Direction
	Latest      time.Time
	InboundOnly bool
}

// Group 将一批短信事件按 (counterpart, thread) 归组并在组内按时间升序排序。
// 输出与输入顺序无关：同一多重集以任意到达顺序归组，成员关系与组内排序一致。
func Group(messages []RawMessage) []Conversation {
	byKey := make(map[[2]string][]RawMessage)
	for _, m := range messages {
		key := [2]string{m.Counterpart, m.ThreadID}
		byKey[key] = append(byKey[key], m)
	}

	conversations := make([]Conversation, 0, len(byKey))
	for key, msgs := range byKey {
		sort.SliceStable(msgs, func(i, j int) bool {
			if !msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
				return msgs[i].Timestamp.Before(msgs[j].Timestamp)
			}
			// 同一时间戳时用正文定序，保证排序与到达顺序无关
			return msgs[i].Body < msgs[j].Body
		})

		var inbound, outbound int
		for _, m := range msgs {
			if m.Incoming {
				inbound++
			} else {
				outbound++
			}
		}

		conversations = append(conversations, Conversation{
			Counterpart: key[0],
			ThreadID:    key[1],
			Messages:    msgs,
			Direction:   vote(inbound, outbound),
			Latest:      msgs[len(msgs)-1].Timestamp,
			InboundOnly: outbound == 0 && inbound > 0,
		})
	}

	// 组本身也按确定性顺序输出
	sort.Slice(conversations, func(i, j int) bool {
		if conversations[i].Counterpart != conversations[j].Counterpart {
			return conversations[i].Counterpart < conversations[j].Counterpart
		}
		return conversations[i].ThreadID < conversations[j].ThreadID
	})

	return conversations
}

// vote 多数票决定主方向，平票为 mixed
func vote(inbound, outbound int) Direction {
	switch {
	case inbound > outbound:
		return DirectionIncoming
	case outbound > inbound:
		return DirectionOutgoing
	default:
		return DirectionMixed
	}
}
