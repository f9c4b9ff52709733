// Package steps описывает шаги онбординга и их исполнителей.
//
// # Обзор
//
// Шаг — именованная единица извлечения данных с объявленными зависимостями.
// Набор шагов статичен: таблица Definition собирается при старте процесса
// и проверяется один раз (NewRegistry). Ошибка проверки — ошибка конфигурации.
//
// # Интерфейс Executor
//
//	type Executor interface {
//	    Execute(ctx context.Context, rc *RunContext) (*Result, error)
//	}
//
// RunContext содержит:
//   - SessionID, URL, Domain — данные run'а
//   - PropertyID — идентификатор объекта (после обязательного шага)
//   - CacheDecision — общее решение о кэше (только для шагов с ConsumesCache)
//   - Attempt — номер попытки
//
// Result содержит:
//   - PropertyID — заполняет только обязательный шаг
//   - Outputs — извлечённые данные
//   - Artifacts — новые артефакты для кэша
//
// # Эталонная топология
//
//	property_info ─┬─ images ── classify_images
//	               ├─ brand_identity, amenities, floor_plans, special_offers
//	               └─ reviews, competitors
//
// images, reviews и competitors делят класс ограничения частоты "scraper":
// они ходят во внешний сервис с общим токеном.
//
// # Исполнители
//
//   - RemoteExecutor — вызывает сервис извлечения по HTTP (remote.go)
//   - RecordArtifacts — сохраняет Result.Artifacts в кэш (recorder.go)
//   - ExecuteWithRetry — повторные попытки с backoff (retry.go)
package steps
