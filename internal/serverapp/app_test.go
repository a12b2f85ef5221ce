package serverapp

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresConfigAndLogger(t *testing.T) {
	_, err := New(nil, testLogger())
	assert.EqualError(t, err, "config is required")

	_, err = New(testConfig(), nil)
	assert.EqualError(t, err, "logger is required")
}

func TestStart_RequiresInit(t *testing.T) {
	app, err := New(testConfig(), testLogger())
	require.NoError(t, err)

	_, err = app.Start()
	assert.EqualError(t, err, "app is not initialized")
	assert.Nil(t, app.Handler())
}

func TestWaitForStop(t *testing.T) {
	app, err := New(testConfig(), testLogger())
	require.NoError(t, err)

	t.Run("signal", func(t *testing.T) {
		stop := make(chan os.Signal, 1)
		stop <- syscall.SIGTERM
		reason, err := app.WaitForStop(stop, nil)
		require.NoError(t, err)
		assert.Equal(t, "signal", reason)
	})

	t.Run("server error", func(t *testing.T) {
		errs := make(chan error, 1)
		errs <- errors.New("bind: address already in use")
		reason, err := app.WaitForStop(nil, errs)
		assert.Equal(t, "server_error", reason)
		assert.EqualError(t, err, "bind: address already in use")
	})

	t.Run("no channels", func(t *testing.T) {
		_, err := app.WaitForStop(nil, nil)
		assert.Error(t, err)
	})
}

func TestShutdown_RunsCleanupOnceInReverse(t *testing.T) {
	app, err := New(testConfig(), testLogger())
	require.NoError(t, err)

	var order []string
	app.cleanup.push("first", func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	app.cleanup.push("second", func(context.Context) error {
		order = append(order, "second")
		return errors.New("ignored")
	})

	require.NoError(t, app.Shutdown(context.Background()))
	require.NoError(t, app.Shutdown(context.Background()))
	assert.Equal(t, []string{"second", "first"}, order)
}
