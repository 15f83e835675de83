package dialect

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/iwtcode/cncService/pkg/errors"
)

// Marlin реализует протокол Marlin: строки нумеруются и снабжаются
// контрольной суммой, "Error:" не является подтверждением - за ним всегда
// следует "ok". С ADVANCED_OK контроллер объявляет свободные слоты буфера
// в каждом "ok ... B<n>".
type Marlin struct{}

func (Marlin) Name() string { return NameMarlin }

func (Marlin) Classify(line string) Reply {
	r := Reply{Raw: line}
	lower := strings.ToLower(line)

	switch {
	case lower == "ok" || strings.HasPrefix(lower, "ok "):
		r.Kind, r.Ack = ReplyOK, true
		r.Advertised = advertisedSlots(line)
	case strings.HasPrefix(lower, "error:"):
		r.Kind = ReplyError
		r.Code = strings.TrimSpace(line[len("error:"):])
		r.Fault = apperrors.ProtoCommandRejected
		if strings.Contains(lower, "checksum") || strings.Contains(lower, "line number") {
			r.Fault = apperrors.ProtoChecksumMismatch
		}
	case strings.HasPrefix(lower, "echo:unknown command"):
		r.Kind = ReplyError
		r.Code = strings.TrimSpace(line[len("echo:"):])
		r.Fault = apperrors.ProtoCommandRejected
	case strings.HasPrefix(lower, "resend:") || strings.HasPrefix(lower, "rs "):
		r.Kind = ReplyResend
		r.Fault = apperrors.ProtoChecksumMismatch
		r.Code = strings.TrimSpace(line[strings.IndexAny(line, ": ")+1:])
	case lower == "start":
		r.Kind = ReplyStartup
		r.Firmware = "Marlin"
	case strings.HasPrefix(lower, "firmware_name:"):
		r.Kind = ReplyInfo
		r.Firmware = line
	case lower == "!!" || strings.HasPrefix(lower, "!! "):
		r.Kind = ReplyAlarm
		r.Fault = apperrors.ProtoAlarm
	case strings.HasPrefix(lower, "t:") || strings.HasPrefix(lower, "x:"):
		r.Kind = ReplyStatus
	case strings.HasPrefix(lower, "echo:") || strings.HasPrefix(lower, "busy:"):
		r.Kind = ReplyInfo
	}
	return r
}

// advertisedSlots извлекает B<n> из "ok N12 P15 B3".
func advertisedSlots(line string) int {
	for _, field := range strings.Fields(line)[1:] {
		if len(field) > 1 && field[0] == 'B' {
			if n, err := strconv.Atoi(field[1:]); err == nil && n > 0 {
				return n
			}
		}
	}
	return 0
}

func (Marlin) Format(line string, lineNumber int) []byte {
	if lineNumber <= 0 {
		return []byte(line + "\n")
	}
	body := fmt.Sprintf("N%d %s", lineNumber, line)
	return []byte(fmt.Sprintf("%s*%d\n", body, Checksum(body)))
}

// Checksum - XOR всех байтов строки, как ожидает Marlin.
func Checksum(s string) byte {
	var cs byte
	for i := 0; i < len(s); i++ {
		cs ^= s[i]
	}
	return cs
}

func (Marlin) Preamble() []string { return []string{"M110 N0"} }

// Halt: M410 останавливает движение без перезагрузки, Marlin отвечает "ok".
func (Marlin) Halt() *HaltSequence {
	return &HaltSequence{Bytes: []byte("M410\n"), Acked: true}
}

func (Marlin) DefaultWindow() int { return 1 }
func (Marlin) MaxWindow() int     { return 16 }
func (Marlin) RxBufferSize() int  { return 0 }
func (Marlin) MaxLineLength() int { return 96 }
