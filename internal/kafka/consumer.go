package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/ranking-engine/internal/config"
)

// VerdictAccepted is the terminal verdict that awards XP. Everything else
// (wrong answer, TLE, runtime error) leaves standings untouched.
const VerdictAccepted = "ACCEPTED"

// SubmissionEvent is the judge pipeline's message for a submission reaching
// a terminal verdict. TotalXP is the user's lifetime XP after grading.
type SubmissionEvent struct {
	UserID    string     `json:"user_id"`
	Username  string     `json:"username,omitempty"`
	ProblemID string     `json:"problem_id"`
	Verdict   string     `json:"verdict"`
	TotalXP   int64      `json:"total_xp"`
	SolvedAt  *time.Time `json:"solved_at,omitempty"`
}

// Accepted reports whether the event awards XP.
func (e *SubmissionEvent) Accepted() bool {
	return strings.EqualFold(e.Verdict, VerdictAccepted)
}

// StandingUpdater applies XP changes to the leaderboard standings
type StandingUpdater interface {
	UpdateUserStanding(ctx context.Context, userID, username string, totalXP int64) error
}

// Consumer consumes submission events from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	updater       StandingUpdater
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, updater StandingUpdater, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		updater:       updater,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if err == sarama.ErrClosedConsumerGroup {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			// Check if context was cancelled
			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	// Wait until consumer is ready
	<-c.ready
	c.logger.Info("Kafka consumer ready")

	// Handle errors in separate goroutine
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a topic partition. Accepted verdicts
// are batched and collapsed per user (the latest TotalXP wins) before the
// standings writes, so a burst of solves costs one write per user.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	batch := make([]SubmissionEvent, 0, cfg.BatchSize)
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	processBatch := func() {
		if len(batch) == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Collapse to the latest event per user; partition ordering
		// makes the last one the freshest XP total.
		latest := make(map[string]SubmissionEvent, len(batch))
		order := make([]string, 0, len(batch))
		for _, event := range batch {
			if _, seen := latest[event.UserID]; !seen {
				order = append(order, event.UserID)
			}
			latest[event.UserID] = event
		}

		for _, userID := range order {
			event := latest[userID]
			if err := h.consumer.updater.UpdateUserStanding(ctx, event.UserID, event.Username, event.TotalXP); err != nil {
				h.consumer.logger.Error("failed to update standing",
					"user_id", event.UserID,
					"error", err,
				)
			}
		}

		h.consumer.logger.Debug("processed batch", "events", len(batch), "users", len(latest))
		batch = batch[:0]
	}

	for {
		select {
		case <-session.Context().Done():
			// Process remaining batch before exit
			processBatch()
			return nil

		case <-batchTimer.C:
			processBatch()
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				processBatch()
				return nil
			}

			var event SubmissionEvent
			if err := json.Unmarshal(message.Value, &event); err != nil {
				h.consumer.logger.Warn("failed to unmarshal message",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				session.MarkMessage(message, "")
				continue
			}

			if event.UserID == "" {
				h.consumer.logger.Warn("invalid submission event, missing user_id",
					"offset", message.Offset,
				)
				session.MarkMessage(message, "")
				continue
			}

			// Only terminal accepted verdicts change XP
			if event.Accepted() {
				batch = append(batch, event)
			}
			session.MarkMessage(message, "")

			if len(batch) >= cfg.BatchSize {
				processBatch()
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}
