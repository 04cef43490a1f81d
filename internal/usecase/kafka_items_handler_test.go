package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalForge/internal/domain/models"
	pkgkafka "SignalForge/pkg/kafka"
)

type stubAnalyzer struct {
	res *models.AnalysisResult
	err error
	got models.AnalysisInput
}

func (s *stubAnalyzer) Analyze(_ context.Context, in models.AnalysisInput, _ Options) (*models.AnalysisResult, error) {
	s.got = in
	return s.res, s.err
}

type memPublisher struct {
	published []*models.AnalysisResult
	err       error
}

func (p *memPublisher) Publish(_ context.Context, r *models.AnalysisResult) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, r)
	return nil
}

func (p *memPublisher) Close() error { return nil }

func TestKafkaItemsHandler_PublishesResult(t *testing.T) {
	res := &models.AnalysisResult{Input: models.AnalysisInput{ID: "n1"}, Stage3: FallbackDecision()}
	an := &stubAnalyzer{res: res}
	pub := &memPublisher{}
	h := NewKafkaItemsHandler("items", an, pub, nil, nil)

	err := h.Handle(context.Background(), pkgkafka.Message{Value: []byte(`{"id":"n1","item_type":"news","news":{"headline":"h"}}`)})
	require.NoError(t, err)
	assert.Equal(t, "items", h.Topic())
	assert.Equal(t, "h", an.got.News.Headline)
	require.Len(t, pub.published, 1)
	assert.Same(t, res, pub.published[0])
}

func TestKafkaItemsHandler_Errors(t *testing.T) {
	t.Run("undecodable is permanent", func(t *testing.T) {
		h := NewKafkaItemsHandler("items", &stubAnalyzer{}, &memPublisher{}, nil, nil)
		err := h.Handle(context.Background(), pkgkafka.Message{Value: []byte(`{not json`)})
		require.Error(t, err)
		assert.True(t, pkgkafka.IsPermanent(err))
	})

	t.Run("invalid input is permanent", func(t *testing.T) {
		an := &stubAnalyzer{err: models.ErrInvalidInput}
		err := NewKafkaItemsHandler("items", an, &memPublisher{}, nil, nil).Handle(context.Background(), pkgkafka.Message{Value: []byte(`{}`)})
		assert.True(t, pkgkafka.IsPermanent(err))
		assert.Len(t, an.got.ID, 36, "missing id gets a uuid")
	})

	t.Run("llm unavailable is retried", func(t *testing.T) {
		an := &stubAnalyzer{err: errors.Join(models.ErrLLMUnavailable, errors.New("429"))}
		err := NewKafkaItemsHandler("items", an, &memPublisher{}, nil, nil).Handle(context.Background(), pkgkafka.Message{Value: []byte(`{}`)})
		require.Error(t, err)
		assert.False(t, pkgkafka.IsPermanent(err))
		assert.ErrorIs(t, err, models.ErrLLMUnavailable)
	})

	t.Run("publish failure is retried", func(t *testing.T) {
		an := &stubAnalyzer{res: &models.AnalysisResult{}}
		err := NewKafkaItemsHandler("items", an, &memPublisher{err: errors.New("broker down")}, nil, nil).
			Handle(context.Background(), pkgkafka.Message{Value: []byte(`{}`)})
		require.Error(t, err)
		assert.False(t, pkgkafka.IsPermanent(err))
	})
}

func TestKafkaItemsHandler_IDStableAcrossRedelivery(t *testing.T) {
	an := &stubAnalyzer{err: errors.New("llm timeout")}
	h := NewKafkaItemsHandler("items", an, &memPublisher{}, nil, nil)
	msg := pkgkafka.Message{Topic: "items", Partition: 2, Offset: 41, Value: []byte(`{"item_type":"news","news":{"headline":"h"}}`)}

	require.Error(t, h.Handle(context.Background(), msg))
	first := an.got.ID
	require.Error(t, h.Handle(context.Background(), msg))
	assert.Len(t, first, 36)
	assert.Equal(t, first, an.got.ID)

	msg.Offset = 42
	require.Error(t, h.Handle(context.Background(), msg))
	assert.NotEqual(t, first, an.got.ID)

	an.err = nil
	an.res = &models.AnalysisResult{}
	require.NoError(t, h.Handle(context.Background(), pkgkafka.Message{Value: []byte(`{"id":"given"}`)}))
	assert.Equal(t, "given", an.got.ID)
}
