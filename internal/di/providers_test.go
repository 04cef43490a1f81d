package di

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalForge/pkg/config"
	applogger "SignalForge/pkg/logger"
)

func TestDisabledProviders_ReturnUsableCleanup(t *testing.T) {
	cfg := &config.Config{}
	l := applogger.Nop()

	ch, cleanup, err := ProvideClickHouseClient(cfg, l)
	require.NoError(t, err)
	assert.Nil(t, ch)
	require.NotNil(t, cleanup)
	cleanup()

	producer, cleanup, err := ProvideKafkaProducer(cfg, l)
	require.NoError(t, err)
	assert.Nil(t, producer)
	require.NotNil(t, cleanup)
	cleanup()

	consumer, cleanup, err := ProvideKafkaConsumer(cfg, l)
	require.NoError(t, err)
	assert.Nil(t, consumer)
	require.NotNil(t, cleanup)
	cleanup()

	c, cleanup, err := ProvideCache(cfg, l)
	require.NoError(t, err)
	assert.NotNil(t, c)
	require.NotNil(t, cleanup)
	cleanup()
}

func TestCloser_RunsCloseAndSwallowsError(t *testing.T) {
	calls := 0
	cleanup := closer(applogger.Nop(), "thing", func() error {
		calls++
		return errors.New("already closed")
	})
	assert.NotPanics(t, cleanup)
	assert.Equal(t, 1, calls)
}
