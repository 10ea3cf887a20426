package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uniattend/attendance-api/pkg/jobs"
)

// SessionSweeper periodically moves overdue ACTIVE sessions to EXPIRED.
// Purely bookkeeping: validation re-checks expiry on every scan, so a
// stopped sweeper never lets a stale session through.
type SessionSweeper struct {
	sessions *QRSessionService
	queue    *jobs.Queue
	interval time.Duration
	logger   *zap.Logger
	stop     chan struct{}
	done     chan struct{}
}

// NewSessionSweeper constructs the sweeper.
func NewSessionSweeper(sessions *QRSessionService, interval time.Duration, logger *zap.Logger) *SessionSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	s := &SessionSweeper{
		sessions: sessions,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.queue = jobs.NewQueue("session-sweeper", s.handle, jobs.QueueConfig{
		Workers:    1,
		MaxRetries: 2,
		RetryDelay: 10 * time.Second,
		Logger:     logger,
	})
	return s
}

// Start launches the queue workers and the ticker loop.
func (s *SessionSweeper) Start(ctx context.Context) {
	s.queue.Start(ctx)
	go s.tick(ctx)
	s.logger.Info("session sweeper started", zap.Duration("interval", s.interval))
}

// Stop halts the ticker and drains the queue.
func (s *SessionSweeper) Stop() {
	close(s.stop)
	<-s.done
	s.queue.Stop()
}

func (s *SessionSweeper) tick(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case t := <-ticker.C:
			job := jobs.Job{
				ID:   fmt.Sprintf("sweep-%d", t.Unix()),
				Type: "expire-overdue-sessions",
			}
			if err := s.queue.Enqueue(job); err != nil {
				s.logger.Warn("sweep enqueue failed", zap.Error(err))
			}
		}
	}
}

func (s *SessionSweeper) handle(ctx context.Context, job jobs.Job) error {
	_, err := s.sessions.ExpireOverdue(ctx)
	return err
}
