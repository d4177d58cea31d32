// Package watcher observes watched folder roots and turns bursts of raw
// filesystem events into one reconciliation intent per path.
//
// The package implements a hybrid watching strategy:
//   - Primary: fsnotify, with every directory under each root watched
//   - Fallback: polling, for environments where fsnotify fails (network mounts, Docker volumes)
//
// If the kernel queue overflows, the watcher emits an OpOverflow event for
// every root so the caller can rescan instead of silently missing changes.
//
// Usage:
//
//	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	_ = w.AddRoot("/media/music")
//	go w.Run(ctx)
//
//	d := watcher.NewDebouncer(2*time.Second, 10*time.Second)
//	defer d.Stop()
//	for {
//	    select {
//	    case ev := <-w.Events():
//	        d.Add(ev)
//	    case intent := <-d.Output():
//	        // hand intent to the scheduler
//	    }
//	}
package watcher
