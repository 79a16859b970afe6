package shutdown

import (
	"context"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/ngdist/pkg/logger"
)

func TestManager_ReverseOrderAndFirstError(t *testing.T) {
	logger.InitWithWriter(io.Discard, "error")

	var order []string
	m := NewManager()
	m.OnShutdown("store", func(context.Context) error {
		order = append(order, "store")
		return errors.New("close failed")
	})
	m.OnShutdown("http", func(context.Context) error {
		order = append(order, "http")
		return nil
	})

	err := m.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shutdown store")
	assert.Equal(t, []string{"http", "store"}, order)

	// 回调只执行一次
	assert.NoError(t, m.Shutdown(context.Background()))
	assert.Len(t, order, 2)
}
