package hbcontext

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/dbheartbeat/internal/common/logging"
)

func TestNew(t *testing.T) {
	entry := logging.NullEntry().WithField("foo", "bar")
	ctx := New(context.Background(), entry)
	require.Equal(t, entry, ctx.Log)
	require.Equal(t, context.Background(), ctx.Context)
}

func TestFromContext(t *testing.T) {
	ctx := Background()
	assert.Same(t, ctx, FromContext(ctx))

	wrapped := FromContext(context.TODO())
	assert.Equal(t, context.TODO(), wrapped.Context)
	assert.NotNil(t, wrapped.Log)
}

func TestWithLogFields(t *testing.T) {
	ctx := WithLogField(New(context.Background(), logging.NullEntry()), "target", "alpha")
	ctx = WithLogFields(ctx, logrus.Fields{"driver": "pgx"})
	assert.Equal(t, logrus.Fields{"target": "alpha", "driver": "pgx"}, ctx.Log.Data)
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := WithTimeout(Background(), 10*time.Millisecond)
	defer cancel()
	select {
	case <-ctx.Done():
		assert.Equal(t, context.DeadlineExceeded, ctx.Err())
	case <-time.After(5 * time.Second):
		t.Fatal("context did not time out")
	}
}

func TestWithCancel(t *testing.T) {
	ctx, cancel := WithCancel(Background())
	cancel()
	<-ctx.Done()
	assert.Equal(t, context.Canceled, ctx.Err())
}

func TestErrGroup(t *testing.T) {
	group, ctx := ErrGroup(Background())
	group.Go(func() error { return errors.New("failed") })
	group.Go(func() error {
		<-ctx.Done()
		return nil
	})
	assert.EqualError(t, group.Wait(), "failed")
}
