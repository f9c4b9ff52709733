// Package cli реализует инструмент командной строки onboarder.
//
// CLI работает с сервисом только через HTTP API и не импортирует
// внутренние пакеты сервиса. Типы ответов продублированы в client.go.
//
// Команды:
//   - submit URL [--force] [--wait]: заявка на онбординг
//   - status SESSION_ID: статус run'а и его шагов
//   - retry SESSION_ID STEP: повтор упавшего шага
//   - cancel SESSION_ID: отмена run'а
//   - missing PROPERTY_ID: недостающие извлечения объекта
//
// Данные выводятся в stdout (таблица или JSON с --json), сообщения в stderr:
//
//	onboarder status 6f1c... --json | jq .steps
package cli
