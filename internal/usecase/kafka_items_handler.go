package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"SignalForge/internal/domain/models"
	domrepo "SignalForge/internal/domain/repository"
	pkgkafka "SignalForge/pkg/kafka"
	"SignalForge/pkg/logger"
)

// ItemAnalyzer is the part of Analyzer the Kafka handler needs.
type ItemAnalyzer interface {
	Analyze(ctx context.Context, in models.AnalysisInput, opts Options) (*models.AnalysisResult, error)
}

// KafkaItemsHandler consumes AnalysisInput messages, analyzes them and
// publishes the results.
type KafkaItemsHandler struct {
	topic     string
	analyzer  ItemAnalyzer
	publisher domrepo.ResultPublisher
	metrics   domrepo.Metrics
	log       *logger.Logger
}

func NewKafkaItemsHandler(topic string, analyzer ItemAnalyzer, publisher domrepo.ResultPublisher, metrics domrepo.Metrics, log *logger.Logger) *KafkaItemsHandler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &KafkaItemsHandler{topic: topic, analyzer: analyzer, publisher: publisher, metrics: metrics, log: log}
}

func (h *KafkaItemsHandler) Topic() string { return h.topic }

// Handle returns a permanent error for payloads that can never succeed, so
// the consumer dead-letters them without retrying. An unavailable LLM or a
// failed publish is returned as is and retried. An item without an ID gets
// one derived from the record, so every redelivery reuses it.
func (h *KafkaItemsHandler) Handle(ctx context.Context, msg pkgkafka.Message) error {
	var in models.AnalysisInput
	if err := json.Unmarshal(msg.Value, &in); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode analysis input: %w", err))
	}
	if in.ID == "" {
		in.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("kafka://"+msg.Ref())).String()
	}

	res, err := h.analyzer.Analyze(ctx, in, Options{})
	if err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			return pkgkafka.Permanent(err)
		}
		return err
	}

	if err := h.publisher.Publish(ctx, res); err != nil {
		h.metrics.RecordError("publish_result")
		return err
	}
	h.log.Debug("analysis published",
		logger.String("item_id", in.ID),
		logger.String("decision", string(res.Stage3.TradeDecision)),
	)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaItemsHandler)(nil)
