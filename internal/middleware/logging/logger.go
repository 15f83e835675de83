package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Enabled    bool   // Включено ли логирование
	Level      string // DEBUG, INFO, WARN, ERROR
	LogsDir    string // Директория для логов
	SavingDays uint   // Сколько дней хранить логи
}

// Logger - обертка над logrus с префиксами подсистем и полями вида
// "ключ", значение.
type Logger struct {
	config *Config
	logger *logrus.Logger
	file   io.Closer
	prefix string
}

func NewLogger(cfg *Config, prefix string) *Logger {
	l := &Logger{
		config: cfg,
		prefix: prefix,
		logger: logrus.New(),
	}

	var output io.Writer = os.Stdout
	if !cfg.Enabled {
		output = io.Discard
	} else if cfg.LogsDir != "" {
		if err := os.MkdirAll(cfg.LogsDir, 0755); err == nil {
			rotator := &lumberjack.Logger{
				Filename:  filepath.Join(cfg.LogsDir, "cnc-service.log"),
				MaxSize:   100, // МБ
				MaxAge:    int(cfg.SavingDays),
				LocalTime: true,
			}
			l.file = rotator
			output = io.MultiWriter(os.Stdout, rotator)
		}
	}

	l.logger.SetOutput(output)
	l.logger.SetLevel(parseLevel(cfg.Level))
	l.logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	return l
}

// NewWriterLogger пишет записи в w без ротации файлов.
func NewWriterLogger(w io.Writer, level string) *Logger {
	l := &Logger{
		config: &Config{Enabled: true, Level: level},
		logger: logrus.New(),
	}
	l.logger.SetOutput(w)
	l.logger.SetLevel(parseLevel(level))
	l.logger.SetFormatter(&logrus.TextFormatter{DisableColors: true, DisableTimestamp: true})
	return l
}

// NewNop создает логгер, который ничего не пишет. Удобен в тестах.
func NewNop() *Logger {
	return NewLogger(&Config{Enabled: false}, "")
}

func parseLevel(level string) logrus.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return logrus.DebugLevel
	case "WARN", "WARNING":
		return logrus.WarnLevel
	case "ERROR":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel // INFO по умолчанию
	}
}

func (l *Logger) WithPrefix(prefix string) *Logger {
	newPrefix := l.prefix
	if newPrefix != "" {
		newPrefix += " "
	}
	newPrefix += "[" + prefix + "]"

	return &Logger{
		config: l.config,
		logger: l.logger,
		file:   l.file,
		prefix: newPrefix,
	}
}

func (l *Logger) entry(fields []interface{}) *logrus.Entry {
	data := make(logrus.Fields, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		var val interface{} = "?"
		if i+1 < len(fields) {
			val = fields[i+1]
		}
		data[key] = val
	}
	return l.logger.WithFields(data)
}

func (l *Logger) message(msg string) string {
	if l.prefix == "" {
		return msg
	}
	return l.prefix + " " + msg
}

func (l *Logger) ShouldLog(level string) bool {
	if !l.config.Enabled {
		return false
	}
	return l.logger.IsLevelEnabled(parseLevel(level))
}

func (l *Logger) Debug(msg string, fields ...interface{}) {
	l.entry(fields).Debug(l.message(msg))
}

func (l *Logger) Info(msg string, fields ...interface{}) {
	l.entry(fields).Info(l.message(msg))
}

func (l *Logger) Warn(msg string, fields ...interface{}) {
	l.entry(fields).Warn(l.message(msg))
}

func (l *Logger) Error(msg string, fields ...interface{}) {
	l.entry(fields).Error(l.message(msg))
}

func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
