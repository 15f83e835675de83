package dialect

import "strings"

// Константы для строковых представлений поддерживаемых прошивок
const (
	NameGrbl     = "grbl"
	NameMarlin   = "marlin"
	NameSmoothie = "smoothie"
)

// ForName выбирает реализацию протокола по имени прошивки. Неизвестные
// и пустые имена получают Grbl как самый распространенный диалект.
func ForName(name string) Dialect {
	s := strings.ToLower(strings.TrimSpace(name))

	switch {
	case strings.HasPrefix(s, NameMarlin):
		return Marlin{}
	case strings.HasPrefix(s, NameSmoothie):
		return Smoothie{}
	default:
		return Grbl{}
	}
}

// Known сообщает, поддерживается ли прошивка с таким именем.
func Known(name string) bool {
	s := strings.ToLower(strings.TrimSpace(name))
	return s == "" || strings.HasPrefix(s, NameGrbl) || strings.HasPrefix(s, NameMarlin) || strings.HasPrefix(s, NameSmoothie)
}
