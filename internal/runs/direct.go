package runs

import (
	"context"
	"time"

	"github.com/finsightai/finsight/internal/agent"
	"github.com/finsightai/finsight/internal/conversations"
	"github.com/finsightai/finsight/pkg/models"
)

// Direct is the synchronous entry point: it blocks until the answer is ready
// instead of returning an observable run. Same-user calls are serialized by
// a per-user lock; the supervisor's run table does not see these calls.
type Direct struct {
	worker  Worker
	locker  *conversations.UserLocker
	timeout time.Duration
}

// NewDirect creates the direct caller. lockTimeout bounds how long a call
// waits behind another call from the same user.
func NewDirect(worker Worker, locker *conversations.UserLocker, lockTimeout time.Duration) *Direct {
	if lockTimeout <= 0 {
		lockTimeout = 30 * time.Second
	}
	return &Direct{worker: worker, locker: locker, timeout: lockTimeout}
}

// Ask runs one research task to completion and returns the answer. Progress
// events are discarded; callers that want them use the supervisor.
func (d *Direct) Ask(ctx context.Context, userID, conversationID, message string) (*agent.Answer, error) {
	release, err := d.locker.Acquire(ctx, userID, d.timeout)
	if err != nil {
		return nil, err
	}
	defer release()

	return d.worker.Execute(ctx, message, conversationID, func(models.RunEvent) {})
}
