package index

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"catalog-scraper/pkg/log"
	"catalog-scraper/pkg/models"
	"catalog-scraper/pkg/utils"
)

// Request is the message emitted for the search indexer after a record lands
// in the product store. The indexer consumes it asynchronously; this pipeline
// never waits for indexing to complete.
type Request struct {
	SourceURL    string    `json:"source_url"`
	SKU          string    `json:"sku,omitempty"`
	Title        string    `json:"title"`
	Category     string    `json:"category"`
	Summary      string    `json:"summary"`
	Headings     []string  `json:"headings,omitempty"`
	QualityScore float64   `json:"quality_score"`
	RequestedAt  time.Time `json:"requested_at"`
}

// RequestProducer publishes index requests.
type RequestProducer interface {
	RequestIndex(ctx context.Context, rec *models.CandidateRecord) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer wraps a Kafka writer for publishing index requests.
type Producer struct {
	writer      messageWriter
	tokenBudget int
	log         *logrus.Entry
}

// NewProducer creates a Kafka producer for the given broker and topic. Writer
// errors surface through logrus at Error level; transport chatter goes to
// Debug.
func NewProducer(broker, topic string, tokenBudget int, logger *logrus.Entry) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(broker),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
			Logger:                 kafka.LoggerFunc(log.KafkaLogrusAdapter(logger, logrus.DebugLevel)),
			ErrorLogger:            kafka.LoggerFunc(log.KafkaLogrusAdapter(logger, logrus.ErrorLevel)),
		},
		tokenBudget: tokenBudget,
		log:         logger,
	}
}

// NewProducerWithWriter builds a producer using a custom writer (tests).
func NewProducerWithWriter(writer messageWriter, tokenBudget int, logger *logrus.Entry) *Producer {
	return &Producer{writer: writer, tokenBudget: tokenBudget, log: logger}
}

// Close shuts down the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// RequestIndex builds the budgeted summary for a record and publishes the
// index request keyed by source URL, so requests for the same product land on
// the same partition and the indexer sees them in order.
func (p *Producer) RequestIndex(ctx context.Context, rec *models.CandidateRecord) error {
	summary, err := BuildSummary(rec, p.tokenBudget)
	if err != nil {
		return fmt.Errorf("%w: building summary for %q: %w", utils.ErrIndexRequest, rec.SourceURL, err)
	}

	req := Request{
		SourceURL:    rec.SourceURL,
		SKU:          rec.SKU,
		Title:        rec.Title,
		Category:     rec.Category,
		Summary:      summary,
		Headings:     ExtractHeadings([]byte(rec.DescriptionMarkdown)),
		QualityScore: rec.QualityScore,
		RequestedAt:  time.Now().UTC(),
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: marshaling request for %q: %w", utils.ErrIndexRequest, rec.SourceURL, err)
	}

	msg := kafka.Message{
		Key:   []byte(rec.SourceURL),
		Value: payload,
		Time:  time.Now().UTC(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%w: publishing request for %q: %w", utils.ErrIndexRequest, rec.SourceURL, err)
	}
	p.log.WithField("source_url", rec.SourceURL).Debug("Index request published")
	return nil
}
