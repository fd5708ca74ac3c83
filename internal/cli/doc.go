// Package cli реализует инструмент командной строки konveyer.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с konveyer API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// CLI используется для управления pipelines и runs.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для konveyer API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок. WatchRun читает SSE-поток run-событий.
//
//	client := cli.NewClient("http://localhost:8080")
//	pipelines, err := client.ListPipelines()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (с отступами) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: konveyer pipeline list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - pipeline: list, create, show, delete
//   - run: list, trigger, show, cancel, rerun, logs, watch
//
// Каждая группа создаётся через фабричную функцию (NewPipelineCmd и
// т.д.), принимающую clientFn и outputFn — замыкания для ленивого
// создания Client и Output после парсинга PersistentFlags.
package cli
