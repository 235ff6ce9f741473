package mq

import (
	"log"

	"clubexpense/internal/config"

	"github.com/IBM/sarama"
)

// Publisher 同步发送消息到 Kafka
type Publisher struct {
	producer sarama.SyncProducer
}

// InitKafka 初始化 Kafka 生产者，未启用时返回 nil
func InitKafka(cfg *config.KafkaConfig) *Publisher {
	if !cfg.Enabled {
		log.Println("Kafka 未启用，事件保留在 outbox 表中")
		return nil
	}

	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		log.Fatalf("创建 Kafka 生产者失败: %v", err)
	}

	log.Println("Kafka 生产者创建成功")
	return NewPublisher(producer)
}

func NewPublisher(producer sarama.SyncProducer) *Publisher {
	return &Publisher{producer: producer}
}

// Publish 发送消息
func (p *Publisher) Publish(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	_, _, err := p.producer.SendMessage(msg)
	return err
}

// Close 关闭 Kafka 生产者
func (p *Publisher) Close() {
	if p != nil && p.producer != nil {
		p.producer.Close()
	}
}
