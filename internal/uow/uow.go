package uow

import (
	"context"
	"time"

	"github.com/kirinyoku/seatbook/internal/repository"
)

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

// UoW represents a unit of work.
type UoW struct {
	store   repository.Store
	timeout time.Duration
}

// NewUoW returns a unit of work over store. A positive timeout bounds how
// long a unit may wait for and hold the store's locks.
func NewUoW(store repository.Store, timeout time.Duration) *UoW {
	return &UoW{store: store, timeout: timeout}
}

// Do runs fn inside the transaction. After a successful commit,
// it executes all after-commit hooks with the caller's context.
func (u *UoW) Do(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Tx, after func(AfterCommit)) error,
) error {
	var hooks []AfterCommit

	txCtx := ctx
	if u.timeout > 0 {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	err := u.store.RunTx(txCtx, func(ctx context.Context, tx repository.Tx) error {
		hooks = hooks[:0]
		return fn(ctx, tx, func(h AfterCommit) {
			hooks = append(hooks, h)
		})
	})
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}
