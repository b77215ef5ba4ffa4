package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"journal/internal/domain"
	"journal/internal/reconcile"
	"journal/internal/store"
)

const (
	// StreamName is the JetStream stream name for execution records.
	StreamName = "JOURNAL_EXECUTIONS"
	// SubjectPrefix is the NATS subject prefix for execution records.
	SubjectPrefix = "journal.executions."
	// SubjectWildcard subscribes to all execution subjects.
	SubjectWildcard = "journal.executions.>"
	// ConsumerName is the durable consumer name.
	ConsumerName = "journal-execution-consumer"
)

// Consumer subscribes to raw execution records via NATS JetStream and routes
// them through the import reconciler. The subject's final token is the
// account scope: journal.executions.<account-id>.
type Consumer struct {
	nc     *nats.Conn
	repo   *store.Repository
	logger zerolog.Logger
}

// NewConsumer creates a new NATS execution consumer.
func NewConsumer(nc *nats.Conn, repo *store.Repository) *Consumer {
	return &Consumer{
		nc:     nc,
		repo:   repo,
		logger: log.With().Str("component", "ingest").Logger(),
	}
}

// Start begins consuming execution records. Blocks until context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	js, err := jetstream.New(c.nc)
	if err != nil {
		return fmt.Errorf("create jetstream context: %w", err)
	}

	// Create or update the stream
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectWildcard},
		Storage:  jetstream.FileStorage,
		MaxBytes: 100 * 1024 * 1024, // 100MB
	})
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}

	// Create durable consumer
	cons, err := js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	c.logger.Info().Msg("started consuming execution records from NATS JetStream")

	// Consume messages
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		if err := c.handleMessage(ctx, msg); err != nil {
			c.logger.Error().Err(err).
				Str("subject", msg.Subject()).
				Msg("failed to handle execution record")
			// NAK for redelivery on DB errors
			msg.Nak()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	// Wait for context cancellation
	<-ctx.Done()
	cc.Stop()
	c.logger.Info().Msg("stopped consuming execution records")
	return nil
}

func (c *Consumer) handleMessage(ctx context.Context, msg jetstream.Msg) error {
	accountID, ok := AccountFromSubject(msg.Subject())
	if !ok {
		c.logger.Warn().
			Str("subject", msg.Subject()).
			Msg("execution record without account subject, rejecting")
		msg.Term()
		return nil
	}

	var rec reconcile.RawRecord
	if err := json.Unmarshal(msg.Data(), &rec); err != nil {
		c.logger.Warn().Err(err).
			Str("subject", msg.Subject()).
			Msg("failed to unmarshal execution record, rejecting")
		// Terminate — malformed messages should not be redelivered
		msg.Term()
		return nil
	}

	if _, err := c.repo.GetOrCreateAccount(ctx, accountID, domain.InferAccountType(accountID)); err != nil {
		return fmt.Errorf("get or create account: %w", err)
	}

	reconciler := reconcile.New(c.repo, accountID, "nats")
	summary, err := reconciler.Run(ctx, []reconcile.RawRecord{rec})
	if err != nil {
		return fmt.Errorf("reconcile execution record: %w", err)
	}

	// A record the reconciler rejected outright will never become valid;
	// terminate instead of redelivering.
	if len(summary.Errors) > 0 {
		c.logger.Warn().
			Str("subject", msg.Subject()).
			Str("reason", summary.Errors[0].Reason).
			Msg("invalid execution record, rejecting")
		msg.Term()
		return nil
	}

	if summary.Inserted > 0 {
		c.logger.Info().
			Str("account_id", accountID).
			Msg("ingested execution record")
	} else {
		c.logger.Debug().
			Str("account_id", accountID).
			Msg("duplicate execution record, skipped")
	}

	return nil
}

// AccountFromSubject extracts the account scope from an execution subject.
func AccountFromSubject(subject string) (string, bool) {
	if !strings.HasPrefix(subject, SubjectPrefix) {
		return "", false
	}
	account := strings.TrimPrefix(subject, SubjectPrefix)
	if account == "" || strings.Contains(account, ".") {
		return "", false
	}
	return account, true
}

// ConnectNATS connects to NATS with retry logic.
func ConnectNATS(urls string, credsFile, creds string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("journal"),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected to NATS")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("disconnected from NATS")
			}
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	// Add credentials if configured
	if creds != "" {
		tmpFile, err := os.CreateTemp("", "nats-creds-*.creds")
		if err != nil {
			return nil, fmt.Errorf("create temp credentials file: %w", err)
		}
		if _, err := tmpFile.WriteString(creds); err != nil {
			tmpFile.Close()
			os.Remove(tmpFile.Name())
			return nil, fmt.Errorf("write credentials: %w", err)
		}
		tmpFile.Close()
		opts = append(opts, nats.UserCredentials(tmpFile.Name()))
	} else if credsFile != "" {
		opts = append(opts, nats.UserCredentials(credsFile))
	}

	// Retry connection
	var nc *nats.Conn
	var err error
	backoff := 100 * time.Millisecond
	maxBackoff := 30 * time.Second

	for attempt := 1; ; attempt++ {
		nc, err = nats.Connect(urls, opts...)
		if err == nil {
			log.Info().Str("url", nc.ConnectedUrl()).Int("attempt", attempt).Msg("connected to NATS")
			return nc, nil
		}

		log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", backoff).
			Msg("failed to connect to NATS, retrying...")
		time.Sleep(backoff)

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
