// Package dialect описывает словари команд и ответов семейств прошивок.
package dialect

import (
	apperrors "github.com/iwtcode/cncService/pkg/errors"
)

// ReplyKind - класс строки, полученной от контроллера.
type ReplyKind int

const (
	ReplyUnknown ReplyKind = iota
	ReplyOK
	ReplyError
	ReplyAlarm
	ReplyResend
	ReplyStartup
	ReplyStatus
	ReplyInfo
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyOK:
		return "ok"
	case ReplyError:
		return "error"
	case ReplyAlarm:
		return "alarm"
	case ReplyResend:
		return "resend"
	case ReplyStartup:
		return "startup"
	case ReplyStatus:
		return "status"
	case ReplyInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Reply - результат классификации строки ответа.
type Reply struct {
	Kind ReplyKind
	// Ack - строка закрывает ровно одну отправленную команду.
	Ack  bool
	Raw  string
	Code string
	// Fault задан для ReplyError и ReplyAlarm.
	Fault apperrors.ProtocolErrorKind
	// Advertised - свободные слоты буфера команд, объявленные контроллером.
	Advertised int
	Firmware   string
}

// HaltSequence - последовательность аварийной остановки.
type HaltSequence struct {
	Bytes []byte
	// Acked - контроллер отвечает на последовательность как на команду.
	Acked bool
	// Resets - контроллер перезагружается и отбрасывает все принятые команды.
	Resets bool
}

// Dialect определяет протокол конкретного семейства прошивок.
type Dialect interface {
	Name() string
	Classify(line string) Reply
	// Format готовит строку к отправке. lineNumber > 0 - порядковый номер
	// строки потока для прошивок с нумерацией строк.
	Format(line string, lineNumber int) []byte
	// Preamble - команды, отправляемые перед началом потока.
	Preamble() []string
	Halt() *HaltSequence
	DefaultWindow() int
	MaxWindow() int
	// RxBufferSize - размер приемного буфера в байтах, 0 если счет
	// ведется только по командам.
	RxBufferSize() int
	MaxLineLength() int
}
