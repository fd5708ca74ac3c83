// Package api реализует HTTP API konveyer.
//
// Структура:
//   - handler.go        — Handler и его зависимости
//   - routes.go         — регистрация маршрутов
//   - middleware.go     — logging, recovery
//   - response.go       — унифицированные ответы и коды ошибок
//   - dto.go            — структуры запросов/ответов
//   - pipeline_handler.go — CRUD pipelines
//   - run_handler.go    — trigger, cancel, rerun, чтение runs и логов
//   - ci_handler.go     — приём отчётов внешней CI-системы
//   - stream_handler.go — SSE-поток run-событий
package api
