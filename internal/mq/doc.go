// Package mq связывает сервис онбординга с RabbitMQ.
//
// Через брокер проходят два потока:
//   - заявки на онбординг (exchange onboarding.runs, очередь onboarding.submit);
//   - события о ходе выполнения (exchange onboarding.events, ключи step.updated и run.finished).
//
// Заявки с исчерпанными попытками обработки уходят в onboarding.dlq.
package mq
