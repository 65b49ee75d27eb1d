package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// AuditConsumer binds a durable queue to the event exchange and appends
// one line per event to an audit log file.
type AuditConsumer struct {
	URL      string
	Exchange string
	Queue    string
	LogPath  string
	Log      *logrus.Logger
}

// Run connects, consumes and reconnects with exponential backoff until
// ctx is cancelled. Malformed messages are rejected without requeue so
// they cannot loop.
func (c *AuditConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.WithError(err).WithField("retry_in", backoff.String()).Warn("audit-consumer: failed to dial broker")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.WithError(err).Warn("audit-consumer: consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *AuditConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Log.WithError(err).Warn("audit-consumer: set QoS failed")
	}
	if err := ch.ExchangeDeclare(c.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	q, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	for _, key := range AuditBindings {
		if err := ch.QueueBind(q.Name, key, c.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}

	msgs, err := ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := c.Handle(d.Body); err != nil {
			c.Log.WithError(err).WithField("message_id", d.MessageId).Error("audit-consumer: handle message failed")
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// Handle decodes one message body and appends its audit line.
func (c *AuditConsumer) Handle(body []byte) error {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" {
		return errors.New("event without type")
	}
	if err := os.MkdirAll(filepath.Dir(c.LogPath), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(c.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatAuditLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatAuditLine renders ev as a single human-friendly line.
func FormatAuditLine(ev Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | event_id=%s | booking_id=%d",
		ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type, ev.ID, ev.BookingID)
	if ev.Reference != "" {
		fmt.Fprintf(&b, " | reference=%s", ev.Reference)
	}
	if ev.RescheduleID != 0 {
		fmt.Fprintf(&b, " | reschedule_id=%d", ev.RescheduleID)
	}
	if ev.ActorID != 0 {
		fmt.Fprintf(&b, " | actor=%d(%s)", ev.ActorID, ev.ActorRole)
	}
	keys := make([]string, 0, len(ev.Data))
	for k := range ev.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " | %s=%v", k, ev.Data[k])
	}
	b.WriteString("\n")
	return b.String()
}
