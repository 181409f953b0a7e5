// Package mq передаёт команды над запросами через RabbitMQ.
//
// Структура:
//   - connection.go — соединение с восстановлением после разрыва
//   - topology.go   — объявление exchanges, queues, bindings
//   - command.go    — RequestCommand и его формат в сообщении
//   - publisher.go  — публикация команд
//   - consumer.go   — потребление и подтверждение команд
//
// Тело сообщения — {"protocol": ..., "action": ...}, action — process,
// resume или reprocess. Ключ маршрутизации — request.<action>;
// message_id и timestamp передаются свойствами AMQP.
//
// Exchanges:
//   - promptflow     — команды над запросами (topic)
//   - promptflow.dlq — dead letter queue
package mq
