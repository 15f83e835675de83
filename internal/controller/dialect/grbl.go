package dialect

import (
	"strings"

	apperrors "github.com/iwtcode/cncService/pkg/errors"
)

// grblLineOverflow - код Grbl "Max characters per line exceeded".
const grblLineOverflow = "11"

// Grbl реализует протокол Grbl 0.9/1.1: каждый "ok" или "error:N"
// подтверждает одну строку, приемный буфер 128 байт.
type Grbl struct{}

func (Grbl) Name() string { return NameGrbl }

func (Grbl) Classify(line string) Reply {
	r := Reply{Raw: line}
	lower := strings.ToLower(line)

	switch {
	case lower == "ok":
		r.Kind, r.Ack = ReplyOK, true
	case strings.HasPrefix(lower, "error:"):
		r.Kind, r.Ack = ReplyError, true
		r.Code = strings.TrimSpace(line[len("error:"):])
		r.Fault = apperrors.ProtoCommandRejected
		if r.Code == grblLineOverflow {
			r.Fault = apperrors.ProtoBufferOverflow
		}
	case strings.HasPrefix(lower, "alarm:"):
		r.Kind = ReplyAlarm
		r.Code = strings.TrimSpace(line[len("alarm:"):])
		r.Fault = apperrors.ProtoAlarm
	case strings.HasPrefix(lower, "grbl "):
		r.Kind = ReplyStartup
		r.Firmware = line
	case strings.HasPrefix(line, "<") && strings.HasSuffix(line, ">"):
		r.Kind = ReplyStatus
	case strings.HasPrefix(line, "["):
		r.Kind = ReplyInfo
	}
	return r
}

func (Grbl) Format(line string, _ int) []byte {
	return []byte(line + "\n")
}

func (Grbl) Preamble() []string { return nil }

// Halt: удержание подачи и программный сброс сохраняют позицию станка.
func (Grbl) Halt() *HaltSequence {
	return &HaltSequence{Bytes: []byte{'!', 0x18}, Resets: true}
}

func (Grbl) DefaultWindow() int { return 8 }
func (Grbl) MaxWindow() int     { return 8 }
func (Grbl) RxBufferSize() int  { return 127 }
func (Grbl) MaxLineLength() int { return 80 }
