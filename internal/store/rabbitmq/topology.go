package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// DeclareTopology declares queue with its ".retry" and ".dlq" companions. Rejected
// deliveries go to the DLQ; messages in the retry queue dead-letter back to queue once
// their TTL expires.
func DeclareTopology(ch *amqp.Channel, queue string) error {
	mainQ := queue
	retryQ := queue + ".retry"
	dlqQ := queue + ".dlq"

	if _, err := ch.QueueDeclare(
		dlqQ,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(
		retryQ,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": mainQ,
		},
	); err != nil {
		return err
	}

	_, err := ch.QueueDeclare(
		mainQ,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlqQ,
		},
	)
	return err
}

// RetryQueue is where failed deliveries are parked before going back to queue.
func RetryQueue(queue string) string { return queue + ".retry" }
