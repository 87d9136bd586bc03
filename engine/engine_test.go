package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	started := make(chan struct{})

	err := Run(context.Background(),
		func(ctx context.Context) error {
			<-started
			return boom
		},
		func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	)

	assert.ErrorIs(t, err, boom)
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := Run(ctx,
		func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunWithNoTasksReturnsNil(t *testing.T) {
	assert.NoError(t, Run(context.Background()))
}
