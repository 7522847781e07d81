// Package kafka publishes mapped-event notifications for downstream
// consumers. The publisher is optional and only wired when KAFKA_ENABLED
// is set.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/storm-data-archive/internal/config"
	"github.com/couchcryptid/storm-data-archive/internal/domain"
)

// MappedEventNotice is the message body published when an event gains its
// file links.
type MappedEventNotice struct {
	EventID  int64     `json:"event_id"`
	Product  string    `json:"product"`
	Start    time.Time `json:"date_time_start"`
	End      time.Time `json:"date_time_end"`
	County   string    `json:"county"`
	NcFiles  []string  `json:"nc_files"`
	MappedAt time.Time `json:"mapped_at"`
}

// Notifier produces mapped-event notices to a Kafka topic.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a producer for the configured mapped-events topic.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaMappedTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Notifier{writer: w, logger: logger}
}

// NotifyMapped publishes one notice per mapped event in a single
// WriteMessages call.
func (n *Notifier) NotifyMapped(ctx context.Context, mapped []domain.MappedEvent) error {
	if len(mapped) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(mapped))
	for i := range mapped {
		msg, err := serializeNotice(NoticeFor(mapped[i].Event, mapped[i].Files))
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return n.writer.WriteMessages(ctx, msgs...)
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// NoticeFor builds the message body for one freshly mapped event.
func NoticeFor(event domain.NoaaEvent, files []domain.NcFile) MappedEventNotice {
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.S3Path)
	}
	return MappedEventNotice{
		EventID:  event.EventID,
		Product:  event.Product,
		Start:    event.Start,
		End:      event.End,
		County:   event.County,
		NcFiles:  paths,
		MappedAt: domain.Now(),
	}
}

// serializeNotice marshals a notice into a Kafka message keyed by NOAA
// event id.
func serializeNotice(notice MappedEventNotice) (kafkago.Message, error) {
	data, err := json.Marshal(notice)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize mapped event notice: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(strconv.FormatInt(notice.EventID, 10)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "product", Value: []byte(notice.Product)},
			{Key: "mapped_at", Value: []byte(notice.MappedAt.Format(time.RFC3339))},
		},
	}, nil
}
