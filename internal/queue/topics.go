package queue

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"
)

// TopicConfig describes one topic to provision.
type TopicConfig struct {
	Name       string
	Partitions int
}

// EnsureTopics creates the given topics on the cluster controller if they do
// not already exist. The main queue runs with 3 partitions (bounding worker
// parallelism) and the DLQ with 1.
func EnsureTopics(brokers []string, topics ...TopicConfig) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}

	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial kafka broker %s: %w", brokers[0], err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to find cluster controller: %w", err)
	}

	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("failed to dial controller: %w", err)
	}
	defer controllerConn.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, t := range topics {
		configs = append(configs, kafka.TopicConfig{
			Topic:             t.Name,
			NumPartitions:     t.Partitions,
			ReplicationFactor: 1,
		})
	}

	// CreateTopics is a no-op for topics that already exist.
	if err := controllerConn.CreateTopics(configs...); err != nil {
		return fmt.Errorf("failed to create topics: %w", err)
	}

	for _, t := range topics {
		slog.Info("topic ensured", "topic", t.Name, "partitions", t.Partitions)
	}
	return nil
}
