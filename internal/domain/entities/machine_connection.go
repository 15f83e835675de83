package entities

import "time"

// MachineConnection - сохраненные параметры подключения к станку.
// Восстанавливаются при старте сервиса.
type MachineConnection struct {
	ConnectionID string    `gorm:"primaryKey;not null" json:"connection_id"`
	Kind         string    `gorm:"not null" json:"kind"`
	Address      string    `gorm:"not null;unique" json:"address"` // путь порта или HOST:PORT
	BaudRate     int       `json:"baud_rate"`
	Dialect      string    `gorm:"not null" json:"dialect"`
	Window       int       `json:"window"` // 0 - окно диалекта
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
