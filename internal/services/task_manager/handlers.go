package task_manager

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Handler выполняет задачу одного типа. Результат сериализуется в JSON.
// Обработчик обязан периодически вызывать Checkpoint и завершаться с его
// ошибкой.
type Handler func(ctx context.Context, payload json.RawMessage, r *Reporter) (any, error)

// Встроенные типы задач
const (
	TypeGCodeStats = "gcode.stats"
	TypeDigest     = "digest"
	TypeSleep      = "sleep"
)

func builtinHandlers() map[string]Handler {
	return map[string]Handler{
		TypeGCodeStats: gcodeStats,
		TypeDigest:     digest,
		TypeSleep:      sleep,
	}
}

type gcodePayload struct {
	GCode string   `json:"gcode"`
	Lines []string `json:"lines"`
}

// GCodeStats - сводка по тексту программы без интерпретации команд.
type GCodeStats struct {
	Lines    int `json:"lines"`
	Commands int `json:"commands"`
	Comments int `json:"comments"`
	Blank    int `json:"blank"`
	Bytes    int `json:"bytes"`
}

const checkpointEvery = 256

func gcodeStats(_ context.Context, payload json.RawMessage, r *Reporter) (any, error) {
	var p gcodePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("неверный payload gcode.stats: %w", err)
	}
	lines := p.Lines
	if p.GCode != "" {
		lines = append(lines, strings.Split(p.GCode, "\n")...)
	}

	var st GCodeStats
	for i, line := range lines {
		if i%checkpointEvery == 0 {
			if err := r.Checkpoint(); err != nil {
				return nil, err
			}
			r.Report(i * 100 / len(lines))
		}
		st.Lines++
		st.Bytes += len(line)

		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			st.Blank++
		case strings.HasPrefix(trimmed, ";") || (strings.HasPrefix(trimmed, "(") && strings.HasSuffix(trimmed, ")")):
			st.Comments++
		default:
			st.Commands++
		}
	}
	r.Report(100)
	return st, nil
}

type digestResult struct {
	Algorithm string `json:"algorithm"`
	Digest    string `json:"digest"`
	Bytes     int    `json:"bytes"`
}

// digest считает sha256 содержимого. JSON-строка хешируется как текст,
// любой другой payload - как есть.
func digest(_ context.Context, payload json.RawMessage, r *Reporter) (any, error) {
	if err := r.Checkpoint(); err != nil {
		return nil, err
	}
	data := []byte(payload)
	var s string
	if json.Unmarshal(payload, &s) == nil {
		data = []byte(s)
	}
	r.Report(100)
	return digestResult{Algorithm: "sha256", Digest: Digest(data), Bytes: len(data)}, nil
}

type sleepPayload struct {
	MS int `json:"ms"`
}

// sleep ждет заданное время с точками отмены. Служит для проверки пула.
func sleep(_ context.Context, payload json.RawMessage, r *Reporter) (any, error) {
	var p sleepPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("неверный payload sleep: %w", err)
	}
	const steps = 10
	step := time.Duration(p.MS) * time.Millisecond / steps

	for i := 0; i < steps; i++ {
		if err := r.Checkpoint(); err != nil {
			return nil, err
		}
		select {
		case <-time.After(step):
		case <-r.Context().Done():
			return nil, r.Checkpoint()
		}
		r.Report((i + 1) * 100 / steps)
	}
	return map[string]int{"slept_ms": p.MS}, nil
}
