package async

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		err := Run(context.Background(), time.Second, "ok", func(ctx context.Context) error { return nil })
		assert.NoError(t, err)
	})

	t.Run("error passes through", func(t *testing.T) {
		boom := errors.New("boom")
		err := Run(context.Background(), time.Second, "fails", func(ctx context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("panic becomes error", func(t *testing.T) {
		err := Run(context.Background(), time.Second, "panics", func(ctx context.Context) error { panic("kaboom") })
		var pe *PanicError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "panics", pe.Task)
		assert.Equal(t, "kaboom", pe.Value)
		assert.NotEmpty(t, pe.Stack)
	})

	t.Run("timeout applied", func(t *testing.T) {
		err := Run(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestGroup(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	g := NewGroup(log)
	var ran atomic.Int32

	for i := 0; i < 5; i++ {
		g.Go(context.Background(), time.Second, "count", func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
	}
	g.Go(context.Background(), time.Second, "explode", func(ctx context.Context) error { panic("bad") })
	g.Go(context.Background(), time.Second, "fail", func(ctx context.Context) error { return errors.New("nope") })
	g.Wait()

	assert.Equal(t, int32(5), ran.Load())
	assert.Contains(t, buf.String(), "background task panicked")
	assert.Contains(t, buf.String(), "background task failed")
	assert.Contains(t, buf.String(), `"task":"explode"`)
}

func TestGroupOutlivesCanceledParent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewGroup(nil)
	var ctxErr error
	g.Go(ctx, time.Second, "after request", func(ctx context.Context) error {
		ctxErr = ctx.Err()
		return nil
	})
	g.Wait()
	assert.NoError(t, ctxErr)
}
