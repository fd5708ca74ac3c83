// Package scheduler запускает pipelines по расписанию.
//
// Расписание — cron-выражение (5 полей) в конфигурации pipeline.
// Scheduler периодически перечитывает scheduled pipelines из БД,
// держит времена следующего запуска в памяти и на каждом тике
// триггерит pipelines, чьё время наступило.
//
// Структура:
//   - scheduler.go — основная логика (Tick, reload)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Pipelines: pipelineRepo,
//	    Trigger:   svc,
//	    Logger:    logger,
//	})
//
//	// Вызывается каждый тик (обычно раз в секунду)
//	if err := sched.Tick(ctx); err != nil {
//	    logger.Error("scheduler tick failed", "error", err)
//	}
//
// Leader Election:
//
// Scheduler не реализует leader election самостоятельно.
// Это делается в main.go через pg_try_advisory_lock.
// Метод Tick() вызывается только лидером.
package scheduler
