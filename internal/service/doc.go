// Package service — прикладные операции над pipelines и runs.
//
// Service сидит между транспортом (HTTP API, CLI, scheduler) и
// хранилищем: проверяет входные данные, прогоняет переходы статусов
// через доменную машину состояний, ставит runs в очередь и публикует
// run-события.
//
// Структура:
//   - service.go  — интерфейсы хранилищ, Config, конструктор
//   - pipeline.go — CRUD pipelines
//   - run.go      — trigger, cancel, rerun, чтение runs и логов
//   - ci.go       — приём статусов и логов от внешней CI-системы
package service
