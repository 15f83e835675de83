// Package docs содержит описание API для swagger UI.
// Пересоздается командой: swag init -g cmd/app/main.go
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/ports": {"get": {"tags": ["Connection"], "summary": "Список последовательных портов", "produces": ["application/json"], "responses": {"200": {"description": "Порты"}}}},
        "/connections": {
            "get": {"tags": ["Connection"], "summary": "Получить список подключений", "produces": ["application/json"], "responses": {"200": {"description": "Список подключений"}}},
            "post": {"tags": ["Connection"], "summary": "Создать подключение", "consumes": ["application/json"], "produces": ["application/json"], "parameters": [{"in": "body", "name": "input", "required": true, "schema": {"type": "object"}}], "responses": {"200": {"description": "Успешное создание подключения"}, "400": {"description": "Неверный формат запроса"}, "409": {"description": "Адрес уже подключен"}, "504": {"description": "Контроллер не ответил вовремя"}}}
        },
        "/connections/{id}": {
            "get": {"tags": ["Connection"], "summary": "Получить подключение", "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}], "responses": {"200": {"description": "Подключение"}, "404": {"description": "Подключение не найдено"}}},
            "delete": {"tags": ["Connection"], "summary": "Удалить подключение", "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}], "responses": {"200": {"description": "Сообщение об успешном удалении"}, "404": {"description": "Подключение не найдено"}}}
        },
        "/connections/{id}/reconnect": {"post": {"tags": ["Connection"], "summary": "Переподключить", "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}], "responses": {"200": {"description": "Подключение после переподключения"}, "409": {"description": "Подключение уже активно"}}}},
        "/connections/{id}/command": {"post": {"tags": ["Connection"], "summary": "Отправить команду", "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}, {"in": "body", "name": "input", "required": true, "schema": {"type": "object"}}], "responses": {"200": {"description": "Ответ контроллера"}, "409": {"description": "Сессия занята заданием"}}}},
        "/connections/{id}/jobs": {
            "get": {"tags": ["Job"], "summary": "Список заданий подключения", "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}], "responses": {"200": {"description": "Задания в порядке создания"}}},
            "post": {"tags": ["Job"], "summary": "Загрузить задание", "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}, {"in": "body", "name": "input", "required": true, "schema": {"type": "object"}}], "responses": {"200": {"description": "Созданное задание"}, "400": {"description": "Пустая программа"}}}
        },
        "/jobs/{id}": {"get": {"tags": ["Job"], "summary": "Получить задание", "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}], "responses": {"200": {"description": "Задание"}, "404": {"description": "Задание не найдено"}}}},
        "/jobs/{id}/start": {"post": {"tags": ["Job"], "summary": "Запустить задание", "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}], "responses": {"200": {"description": "Задание"}, "409": {"description": "Недопустимо в текущем состоянии"}}}},
        "/jobs/{id}/pause": {"post": {"tags": ["Job"], "summary": "Приостановить задание", "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}], "responses": {"200": {"description": "Задание"}, "409": {"description": "Недопустимо в текущем состоянии"}}}},
        "/jobs/{id}/resume": {"post": {"tags": ["Job"], "summary": "Возобновить задание", "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}], "responses": {"200": {"description": "Задание"}, "409": {"description": "Недопустимо в текущем состоянии"}}}},
        "/jobs/{id}/cancel": {"post": {"tags": ["Job"], "summary": "Отменить задание", "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}], "responses": {"200": {"description": "Задание"}, "409": {"description": "Задание уже завершено"}}}},
        "/tasks": {
            "get": {"tags": ["Task"], "summary": "Список задач", "responses": {"200": {"description": "Задачи в порядке постановки"}}},
            "post": {"tags": ["Task"], "summary": "Поставить задачу", "parameters": [{"in": "body", "name": "input", "required": true, "schema": {"type": "object"}}], "responses": {"200": {"description": "Задача в статусе Queued"}, "400": {"description": "Неизвестный тип задачи"}}}
        },
        "/tasks/{id}": {"get": {"tags": ["Task"], "summary": "Получить задачу", "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}], "responses": {"200": {"description": "Задача"}, "404": {"description": "Задача не найдена"}}}},
        "/tasks/{id}/cancel": {"post": {"tags": ["Task"], "summary": "Отменить задачу", "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}], "responses": {"200": {"description": "Задача"}, "404": {"description": "Задача не найдена"}}}},
        "/ws": {"get": {"tags": ["Realtime"], "summary": "Realtime-канал", "responses": {"101": {"description": "Switching Protocols"}}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8082",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "CNC Service API",
	Description:      "API для потоковой передачи G-кода на станки с ЧПУ, фоновых задач и realtime-событий.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
