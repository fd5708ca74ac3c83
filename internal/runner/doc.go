// Package runner выполняет отдельные steps.
//
// Runner получает step и стримит лог-строки через LogSink по мере
// выполнения, а по завершении возвращает финальный статус.
//
// Реализации:
//   - Simulator — симуляция CI-шага с генерацией логов
//   - HTTPRunner — выполнение шага внешним HTTP-вызовом
//
// Тип runner'а выбирается по meta-ключу "runner" шага,
// по умолчанию — simulate.
package runner
