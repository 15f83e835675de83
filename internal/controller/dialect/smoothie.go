package dialect

import (
	"strings"

	apperrors "github.com/iwtcode/cncService/pkg/errors"
)

// Smoothie реализует протокол Smoothieware.
type Smoothie struct{}

func (Smoothie) Name() string { return NameSmoothie }

func (Smoothie) Classify(line string) Reply {
	r := Reply{Raw: line}
	lower := strings.ToLower(line)

	switch {
	case lower == "ok" || strings.HasPrefix(lower, "ok "):
		r.Kind, r.Ack = ReplyOK, true
	case strings.HasPrefix(lower, "error:"):
		r.Kind, r.Ack = ReplyError, true
		r.Code = strings.TrimSpace(line[len("error:"):])
		r.Fault = apperrors.ProtoCommandRejected
	case lower == "!!" || strings.HasPrefix(lower, "alarm"):
		r.Kind = ReplyAlarm
		r.Fault = apperrors.ProtoAlarm
	case lower == "smoothie" || strings.HasPrefix(lower, "build version:"):
		r.Kind = ReplyStartup
		r.Firmware = line
	case strings.HasPrefix(line, "<") && strings.HasSuffix(line, ">"):
		r.Kind = ReplyStatus
	case strings.HasPrefix(line, "["):
		r.Kind = ReplyInfo
	}
	return r
}

func (Smoothie) Format(line string, _ int) []byte {
	return []byte(line + "\n")
}

func (Smoothie) Preamble() []string { return nil }

func (Smoothie) Halt() *HaltSequence {
	return &HaltSequence{Bytes: []byte("M112\n"), Acked: true}
}

func (Smoothie) DefaultWindow() int { return 4 }
func (Smoothie) MaxWindow() int     { return 4 }
func (Smoothie) RxBufferSize() int  { return 0 }
func (Smoothie) MaxLineLength() int { return 128 }
