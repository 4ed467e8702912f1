// Package registry provides a generic thread-safe map keyed by any comparable
// type.
//
// dagflow uses it as the arena behind its run-scoped overlays: each node keeps
// a Registry[string, *nodeRun] keyed by run id, and each graph keeps one for
// its per-run graph state. Installing an overlay is Add (which refuses to
// replace a live entry), tearing it down is Take.
//
//	runs := registry.New[string, *state]()
//	if !runs.Add(runID, newState()) {
//	    return ErrAlreadyRunning
//	}
//	defer runs.Take(runID)
//
// All methods are safe for concurrent use.
package registry
