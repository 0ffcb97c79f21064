package connector

import (
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/config"
)

type named string

func (n named) Name() string { return string(n) }

func (n named) Fetch(context.Context) iter.Seq2[Record, error] {
	return func(func(Record, error) bool) {}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("remoteok", func(*config.Settings, *zap.Logger) Connector { return named("remoteok") })
	r.Register("another", func(*config.Settings, *zap.Logger) Connector { return named("another") })

	assert.Equal(t, []string{"another", "remoteok"}, r.Names())

	c, err := r.New("remoteok", &config.Settings{}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "remoteok", c.Name())

	_, err = r.New("nope", &config.Settings{}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown source "nope"`)
}
