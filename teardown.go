package dbbench

import (
	"context"
	"log/slog"

	"go.uber.org/multierr"
)

// Delete closes the client handle, stops the container if it is running, and removes it.
//
// Delete is safe to call more than once and from several goroutines; only the first call does
// anything. It never fails: every step is attempted regardless of earlier failures, and errors
// (already stopped, already removed, engine unreachable) are logged and dropped. Teardown is not
// bound by the cancellation of ctx.
func (i *Instance) Delete(ctx context.Context) {
	if i == nil || !i.deleted.CompareAndSwap(false, true) {
		return
	}
	ctx = context.WithoutCancel(ctx)

	errs := i.closeDB()
	if i.container != nil {
		id := i.container.ID
		state, err := i.runtime.Inspect(ctx, id)
		if err != nil {
			errs = multierr.Append(errs, err)
		} else if state.Running {
			errs = multierr.Append(errs, i.runtime.Stop(ctx, id))
		}
		errs = multierr.Append(errs, i.runtime.Remove(ctx, id))
	}
	if errs != nil {
		i.logger.Debug("ignored errors during teardown", slog.Any("error", errs))
	}
	i.logger.Info("instance deleted")
}

// Close deletes the instance. It always returns nil and exists so an Instance can be used as an
// io.Closer.
func (i *Instance) Close() error {
	i.Delete(context.Background())
	return nil
}

// release closes the client handle but leaves the container in place.
func (i *Instance) release() {
	if err := i.closeDB(); err != nil {
		i.logger.Debug("close database handle", slog.Any("error", err))
	}
	i.logger.Info("container kept for inspection", slog.String("container_id", i.ContainerID()))
}

func (i *Instance) closeDB() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.db == nil {
		return nil
	}
	err := i.db.Close()
	i.db = nil
	return err
}
