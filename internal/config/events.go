package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/SAP-F-2025/quiz-service/internal/events"
)

// EventConfig holds configuration for analytics publishing
type EventConfig struct {
	Enabled        bool
	Publisher      string // kafka, gochannel or none
	KafkaBrokers   string
	AnalyticsTopic string
}

// GetKafkaBrokers returns Kafka brokers as a slice
func (c *EventConfig) GetKafkaBrokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// CreateEventPublisher creates an event publisher based on configuration
func (c *EventConfig) CreateEventPublisher(logger *slog.Logger) (events.EventPublisher, error) {
	if !c.Enabled {
		logger.Info("Event publishing disabled, discarding analytics events")
		return events.NewDiscardEventPublisher(logger), nil
	}

	switch c.Publisher {
	case "kafka":
		brokers := c.GetKafkaBrokers()
		if len(brokers) == 0 {
			return nil, fmt.Errorf("EVENTS_PUBLISHER=kafka requires KAFKA_BROKERS")
		}
		logger.Info("Creating Kafka event publisher",
			"brokers", c.KafkaBrokers,
			"topic", c.AnalyticsTopic)

		return events.NewKafkaEventPublisher(events.PublisherConfig{
			KafkaBrokers: brokers,
			TopicName:    c.AnalyticsTopic,
			Logger:       logger,
		})
	case "gochannel":
		logger.Info("Using in-process event publisher", "topic", c.AnalyticsTopic)
		return events.NewGoChannelEventPublisher(events.NewGoChannel(64, logger), events.PublisherConfig{
			TopicName: c.AnalyticsTopic,
			Logger:    logger,
		}), nil
	case "none", "mock":
		logger.Info("Analytics publisher disabled, discarding events", "publisher", c.Publisher)
		return events.NewDiscardEventPublisher(logger), nil
	default:
		logger.Warn("Unknown event publisher type, discarding events", "publisher", c.Publisher)
		return events.NewDiscardEventPublisher(logger), nil
	}
}
