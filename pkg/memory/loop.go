package memory

import (
	"context"
	"time"
)

// compileLoop rebuilds the snapshot once writes have been quiet for the
// debounce interval.
func (h *Hub) compileLoop(ctx context.Context) {
	defer close(h.done)

	timer := time.NewTimer(h.cfg.CompileDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-h.kick:
			timer.Reset(h.cfg.CompileDebounce)
		case <-timer.C:
			if !h.dirty.Load() {
				continue
			}
			if _, err := h.Compile(ctx); err != nil {
				// Keep the previous snapshot and retry after the next write.
				h.log.Warn("auto compile failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
