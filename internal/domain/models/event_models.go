package models

import (
	"time"

	"github.com/iwtcode/cncService/pkg/errors"
)

// EventType - тег события шины.
type EventType string

const (
	EventConnectionStateChanged EventType = "ConnectionStateChanged"
	EventJobProgress            EventType = "JobProgress"
	EventJobStatusChanged       EventType = "JobStatusChanged"
	EventTaskProgress           EventType = "TaskProgress"
	EventTaskStatusChanged      EventType = "TaskStatusChanged"
)

const (
	// TopicTasks получает события всех фоновых задач.
	TopicTasks = "tasks"
	// TopicAll - подписка на все топики.
	TopicAll = "*"
)

// MachineTopic возвращает топик событий подключения и его заданий.
func MachineTopic(connectionID string) string {
	return "machine:" + connectionID
}

// Event - неизменяемая запись шины. Seq монотонно растет в пределах Topic
// и назначается шиной при публикации.
type Event struct {
	Topic        string         `json:"topic"`
	Seq          uint64         `json:"seq"`
	Type         EventType      `json:"type"`
	Timestamp    time.Time      `json:"timestamp"`
	ConnectionID string         `json:"connection_id,omitempty"`
	JobID        string         `json:"job_id,omitempty"`
	TaskID       string         `json:"task_id,omitempty"`
	State        string         `json:"state,omitempty"`
	Cursor       int            `json:"cursor,omitempty"`
	Total        int            `json:"total,omitempty"`
	Progress     int            `json:"progress,omitempty"`
	Error        *errors.Detail `json:"error,omitempty"`
}

// Сообщения realtime-канала.
const (
	ClientSubscribe   = "subscribe"
	ClientUnsubscribe = "unsubscribe"
	ClientResync      = "resync"
	ClientSnapshot    = "snapshot"

	ServerEvent             = "event"
	ServerDropped           = "dropped"
	ServerReplayUnavailable = "replay_unavailable"
	ServerSnapshot          = "snapshot"
	ServerError             = "error"
	ServerAck               = "ack"
)

// ClientMessage - входящее сообщение клиента по realtime-каналу.
type ClientMessage struct {
	Type     string   `json:"type"`
	Topics   []string `json:"topics,omitempty"`
	Topic    string   `json:"topic,omitempty"`
	SinceSeq uint64   `json:"since_seq,omitempty"`
}

// ServerMessage - исходящее сообщение сервера по realtime-каналу.
type ServerMessage struct {
	Type     string         `json:"type"`
	Event    *Event         `json:"event,omitempty"`
	Topic    string         `json:"topic,omitempty"`
	Seq      uint64         `json:"seq,omitempty"`
	Snapshot *TopicSnapshot `json:"snapshot,omitempty"`
	Error    *errors.Detail `json:"error,omitempty"`
}

// TopicSnapshot - текущее состояние сущностей топика на момент Seq.
type TopicSnapshot struct {
	Connection *ConnectionInfo `json:"connection,omitempty"`
	Jobs       []*Job          `json:"jobs,omitempty"`
	Tasks      []*Task         `json:"tasks,omitempty"`
}
