// Package audit turns change events from the queue into log lines.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"attendance/internal/attendance"
	"attendance/internal/metrics"
	"attendance/internal/queue"
)

// Consumer reads change events and writes one audit line per event.
type Consumer struct {
	logger *log.Logger
}

// NewConsumer creates a consumer writing to logger, or the standard logger when nil.
func NewConsumer(logger *log.Logger) *Consumer {
	if logger == nil {
		logger = log.Default()
	}
	return &Consumer{logger: logger}
}

// Run consumes q until ctx is done or the queue closes its channel.
func (c *Consumer) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init failed: %w", err)
	}
	for msg := range messages {
		c.Handle(msg)
	}
	return nil
}

// Handle writes the audit line for a single message.
func (c *Consumer) Handle(msg queue.Message) {
	line, err := Describe(msg)
	if err != nil {
		c.logger.Printf("audit: skipping %q event: %v", msg.Type, err)
		return
	}
	metrics.AuditEvents.WithLabelValues(msg.Type).Inc()
	c.logger.Printf("audit: %s", line)
}

// Describe renders a change event as a human readable line.
func Describe(msg queue.Message) (string, error) {
	var evt attendance.Event
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		return "", fmt.Errorf("decode event: %w", err)
	}

	switch msg.Type {
	case attendance.EventStudentAdded:
		if evt.Student == nil {
			return "", fmt.Errorf("event %s has no student", evt.ID)
		}
		st := evt.Student
		return fmt.Sprintf("%s student added id=%d name=%s roll=%s class=%s event=%s",
			evt.OccurredAt, st.ID, text(st.Name), text(st.RollNumber), text(st.Class), evt.ID), nil
	case attendance.EventAttendanceRecorded:
		if evt.Record == nil {
			return "", fmt.Errorf("event %s has no record", evt.ID)
		}
		rec := evt.Record
		student := "-"
		if rec.StudentID.Valid {
			student = fmt.Sprint(rec.StudentID.ID)
		}
		return fmt.Sprintf("%s attendance recorded id=%d student=%s date=%s status=%s event=%s",
			evt.OccurredAt, rec.ID, student, text(rec.Date), text(rec.Status), evt.ID), nil
	default:
		return "", fmt.Errorf("unknown event type")
	}
}

func text(t attendance.Text) string {
	if !t.Valid {
		return "-"
	}
	return fmt.Sprintf("%q", t.String)
}
