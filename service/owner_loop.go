package service

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
)

// ErrLoopStopped is returned by Call once the owner loop has exited
var ErrLoopStopped = errors.New("owner loop stopped")

// Dispatcher hands a function to the goroutine that owns the ledger
type Dispatcher interface {
	Post(fn func()) bool
}

// OwnerLoop serializes every ledger mutation on one goroutine. HTTP handlers
// use Call; background tasks use Post to hand results back.
type OwnerLoop struct {
	queue chan func()
	done  chan struct{}
}

var _ Dispatcher = (*OwnerLoop)(nil)

// NewOwnerLoop creates a loop with a buffered work queue
func NewOwnerLoop(buffer int) *OwnerLoop {
	if buffer <= 0 {
		buffer = 64
	}
	return &OwnerLoop{
		queue: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
}

// Run executes posted work until ctx is canceled
func (l *OwnerLoop) Run(ctx context.Context) error {
	log.Info("🔁 Owner loop started")
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			log.Info("🛑 Owner loop stopped")
			return nil
		case fn := <-l.queue:
			l.exec(fn)
		}
	}
}

func (l *OwnerLoop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("❌ Owner loop task panicked")
		}
	}()
	fn()
}

// Post queues fn without waiting. It reports false once the loop has stopped.
func (l *OwnerLoop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call runs fn on the owner goroutine and waits for its result
func (l *OwnerLoop) Call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	task := func() { result <- fn() }

	select {
	case l.queue <- task:
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-l.done:
		// the task may have run just before the loop exited
		select {
		case err := <-result:
			return err
		default:
			return ErrLoopStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when Run returns
func (l *OwnerLoop) Done() <-chan struct{} {
	return l.done
}
