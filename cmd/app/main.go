// @title CNC Service API
// @version 1.0.0
// @description API для потоковой передачи G-кода на станки с ЧПУ (GRBL, Marlin, Smoothieware), фоновых задач и realtime-событий.
// @host localhost:8082
// @BasePath /api/v1
package main

import "github.com/iwtcode/cncService/internal/app"

func main() {
	// Создаем и запускаем новый экземпляр приложения fx
	app.New().Run()
}
