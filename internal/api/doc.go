// Package api — HTTP API сервиса онбординга.
//
// Маршруты:
//   - POST /api/v1/onboarding                                    — новая заявка
//   - GET  /api/v1/onboarding/{session_id}                       — статус run'а
//   - POST /api/v1/onboarding/{session_id}/retry                 — retry шага
//   - POST /api/v1/onboarding/{session_id}/cancel                — отмена
//   - GET  /api/v1/properties/{property_id}/missing-extractions  — недостающие извлечения
//   - GET  /healthz, GET /metrics
//
// Успешный ответ — {"data": ...}, ошибка — {"error": {"code", "message"}}.
package api
