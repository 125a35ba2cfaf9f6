package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"loyalty/config"
	"loyalty/internal/repository"
	"loyalty/internal/service"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// ConfirmationMessage is a payment confirmation delivered over the queue.
// Same contract as the HTTP webhook: at-least-once delivery, settled
// exactly once by the conditional update in the settlement service.
type ConfirmationMessage struct {
	OrderNo       string `json:"order_no"`
	TransactionID string `json:"transaction_id"`
	TotalFee      int64  `json:"total_fee"`
}

// Consumer reads payment confirmations from RabbitMQ and feeds them into
// the settlement service. Redelivery is harmless, so processing failures
// nack with requeue and let the broker retry.
type Consumer struct {
	cfg        config.RabbitMQConfig
	orders     *repository.OrderRepository
	settlement *service.SettlementService
	log        *logrus.Logger

	conn    *amqp.Connection
	channel *amqp.Channel
	wg      sync.WaitGroup
}

func New(cfg config.RabbitMQConfig, orders *repository.OrderRepository, settlement *service.SettlementService, log *logrus.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		cfg.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}
	log.WithField("queue", cfg.Queue).Info("connected to RabbitMQ")
	return &Consumer{cfg: cfg, orders: orders, settlement: settlement, log: log, conn: conn, channel: ch}, nil
}

// Start consumes until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.cfg.Queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	workers := c.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	c.log.WithField("workers", workers).Info("starting settlement consumer workers")
	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, msgs, i)
	}

	<-ctx.Done()
	c.wg.Wait()
	return nil
}

func (c *Consumer) worker(ctx context.Context, msgs <-chan amqp.Delivery, workerID int) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.log.WithField("worker_id", workerID).Warn("message channel closed")
				return
			}
			c.processMessage(msg, workerID)
		}
	}
}

func (c *Consumer) processMessage(msg amqp.Delivery, workerID int) {
	var payload ConfirmationMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		c.log.WithFields(logrus.Fields{
			"worker_id": workerID,
			"error":     err,
			"body":      string(msg.Body),
		}).Error("failed to unmarshal confirmation")
		_ = msg.Nack(false, false) // malformed, drop
		return
	}
	log := c.log.WithFields(logrus.Fields{
		"worker_id": workerID,
		"order_no":  payload.OrderNo,
	})
	if payload.OrderNo == "" {
		log.Error("confirmation without order_no")
		_ = msg.Nack(false, false)
		return
	}

	order, err := c.orders.GetByOrderNo(payload.OrderNo)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			log.Warn("confirmation for unknown order, dropping")
			_ = msg.Nack(false, false)
			return
		}
		log.WithError(err).Error("order lookup failed, requeueing")
		_ = msg.Nack(false, true)
		return
	}
	if payload.TotalFee != order.AmountCents {
		log.WithFields(logrus.Fields{
			"expected": order.AmountCents,
			"actual":   payload.TotalFee,
		}).Error("confirmation amount mismatch, dropping")
		_ = msg.Nack(false, false)
		return
	}

	_, err = c.settlement.SettlePayment(order.ID, payload.TransactionID)
	switch {
	case err == nil:
		_ = msg.Ack(false)
	case errors.Is(err, service.ErrAlreadySettled), errors.Is(err, service.ErrOrderClosed):
		// Duplicate delivery or stale confirmation; done either way.
		log.Debug("confirmation was a no-op")
		_ = msg.Ack(false)
	default:
		log.WithError(err).Error("settlement failed, requeueing")
		_ = msg.Nack(false, true)
	}
}

func (c *Consumer) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.log.Info("consumer closed")
}
