package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/IBM/sarama"
)

// KafkaPublisher mirrors broadcast topics onto Kafka. The channel
// "/topic/vitals/p1" becomes Kafka topic "<prefix>vitals" with key "p1".
type KafkaPublisher struct {
	producer sarama.SyncProducer
	prefix   string
}

// NewKafkaProducer builds a SyncProducer suited to KafkaPublisher.
func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 3
	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return p, nil
}

// NewKafkaPublisher wraps producer. prefix is prepended to derived topic names.
func NewKafkaPublisher(producer sarama.SyncProducer, prefix string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, prefix: prefix}
}

// KafkaTopic maps a broadcast channel to a Kafka topic and message key.
func KafkaTopic(prefix, channel string) (topic, key string) {
	rest := strings.TrimPrefix(strings.TrimPrefix(channel, "/"), "topic/")
	name, key, _ := strings.Cut(rest, "/")
	return prefix + name, key
}

// Publish implements Publisher.
func (k *KafkaPublisher) Publish(_ context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", channel, err)
	}
	topic, key := KafkaTopic(k.prefix, channel)
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(data),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	if _, _, err := k.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka send %s: %w", topic, err)
	}
	return nil
}

// Close closes the underlying producer.
func (k *KafkaPublisher) Close() error {
	return k.producer.Close()
}
