package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/partsrunner-backend/pkg/config"
	"github.com/angelmondragon/partsrunner-backend/pkg/logger"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubWorker struct {
	ran bool
	err error
}

func (s *stubWorker) Run(context.Context) error {
	s.ran = true
	return s.err
}

func newTestService(t *testing.T, db, redis stubPinger, worker *stubWorker) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config: &config.Config{},
		Logger: logger.Nop(),
		DB:     db,
		Redis:  redis,
		Worker: worker,
	})
	require.NoError(t, err)
	return svc
}

func TestRunStopsWhenRedisIsDown(t *testing.T) {
	worker := &stubWorker{}
	svc := newTestService(t, stubPinger{}, stubPinger{err: errors.New("connection refused")}, worker)

	err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
	assert.False(t, worker.ran)
}

func TestRunReturnsConsumerError(t *testing.T) {
	worker := &stubWorker{err: errors.New("queue closed")}
	svc := newTestService(t, stubPinger{}, stubPinger{}, worker)

	err := svc.Run(context.Background())
	assert.EqualError(t, err, "queue closed")
	assert.True(t, worker.ran)
}

func TestNewServiceRequiresWorker(t *testing.T) {
	_, err := NewService(ServiceParams{
		Config: &config.Config{},
		Logger: logger.Nop(),
		DB:     stubPinger{},
		Redis:  stubPinger{},
	})
	assert.Error(t, err)
}
