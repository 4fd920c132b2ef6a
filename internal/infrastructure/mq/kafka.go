package mq

import (
	"fmt"
	"log/slog"

	"marketplace/internal/config"

	"github.com/IBM/sarama"
)

// NewProducerConfig 生产者配置：等待所有副本确认，失败重试 3 次
func NewProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true // SyncProducer 必须开启
	return cfg
}

// Publisher 把 outbox 消息投递到 Kafka
type Publisher struct {
	producer sarama.SyncProducer
}

func NewPublisher(producer sarama.SyncProducer) *Publisher {
	return &Publisher{producer: producer}
}

// InitKafka 连接 Kafka 并创建同步生产者
func InitKafka(cfg *config.KafkaConfig) (*Publisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}
	slog.Info("Kafka 生产者创建成功", "brokers", cfg.Brokers)
	return NewPublisher(producer), nil
}

// Publish 同步发送一条消息，key 相同的消息进入同一个分区
func (p *Publisher) Publish(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return err
	}
	slog.Debug("Kafka 消息已发送", "topic", topic, "key", key, "partition", partition, "offset", offset)
	return nil
}

func (p *Publisher) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
