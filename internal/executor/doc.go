// Package executor выполняет pipeline runs.
//
// Executor берёт run из очереди (через dispatcher), переводит его
// queued → running и последовательно выполняет его steps. Перед каждым
// шагом статус run перечитывается из БД: это кооперативная точка
// отмены, через неё работает CancelRun.
//
// Провал шага останавливает run: оставшиеся pending steps помечаются
// failed одним bulk-обновлением, run становится failed. Любая
// инфраструктурная ошибка по пути переводит run в failed с текстом
// ошибки в meta.
//
// Каждое изменение состояния публикуется в EventSink.
package executor
