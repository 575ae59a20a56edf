package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

type Client struct {
	Brokers []string
}

func NewClient(brokersCSV string) *Client {
	brokers := []string{}
	for _, b := range strings.Split(brokersCSV, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return &Client{Brokers: brokers}
}

func (c *Client) Enabled() bool {
	return len(c.Brokers) > 0
}

func (c *Client) NewWriter(topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

func (c *Client) NewReader(topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.Brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
}

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func PublishJSON(ctx context.Context, writer MessageWriter, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: data, Time: time.Now().UTC()})
}

var ErrDisabled = errors.New("kafka disabled")

// Publisher writes raw payloads to any topic, keeping one writer per topic.
type Publisher struct {
	newWriter func(topic string) MessageWriter

	mu      sync.Mutex
	writers map[string]MessageWriter
}

func NewPublisher(c *Client) (*Publisher, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	return newPublisher(func(topic string) MessageWriter { return c.NewWriter(topic) }), nil
}

func newPublisher(newWriter func(topic string) MessageWriter) *Publisher {
	return &Publisher{newWriter: newWriter, writers: make(map[string]MessageWriter)}
}

func (p *Publisher) writer(topic string) MessageWriter {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.writers[topic]
	if !ok {
		w = p.newWriter(topic)
		p.writers[topic] = w
	}
	return w
}

// Publish sends payload, already encoded, keyed by key.
func (p *Publisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	return p.writer(topic).WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload, Time: time.Now().UTC()})
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.writers, topic)
	}
	return errors.Join(errs...)
}

// MessageReader is the part of *kafka.Reader Consume needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Consume hands every message to handle until ctx is done, handle fails or
// the reader returns an error.
func Consume(ctx context.Context, r MessageReader, handle func(key string, value []byte) error) error {
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := handle(string(msg.Key), msg.Value); err != nil {
			return err
		}
	}
}
