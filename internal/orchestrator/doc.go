// Package orchestrator выполняет запросы как последовательные конвейеры.
//
// Orchestrator отвечает за:
//   - Получение команд process/resume/reprocess из очереди RabbitMQ
//   - Подбор created-запросов, для которых команда потерялась (polling)
//   - Последовательное выполнение шагов с подстановкой значений из контекста
//   - Сохранение результата каждого шага для последующего resume
//   - Финализацию запроса (completed/failed)
//
// Один запрос не выполняется дважды одновременно внутри процесса;
// контекст выполнения живёт только в пределах одного выполнения и
// восстанавливается из сохранённых результатов при resume.
package orchestrator
