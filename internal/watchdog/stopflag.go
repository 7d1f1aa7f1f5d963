package watchdog

import (
	"time"

	"tradecore/internal/store"
)

// StopFlag is the fail-closed sentinel. Its presence is the control
// signal; the content is for diagnosis only and is never parsed for
// control logic. Only an operator removes the file.
type StopFlag struct {
	Reason string `json:"reason"`
	Ts     string `json:"ts"`
}

// StopExists reports whether the sentinel is present.
func StopExists(path string) bool {
	return store.Exists(path)
}

// WriteStop atomically creates the sentinel. Callers guard against
// rewriting an existing flag.
func WriteStop(path, reason string, now time.Time) error {
	return store.Replace(path, StopFlag{
		Reason: reason,
		Ts:     now.UTC().Format(time.RFC3339),
	})
}

// ReadStop loads the sentinel content for diagnostics.
func ReadStop(path string) (StopFlag, error) {
	var f StopFlag
	if err := store.Load(path, &f); err != nil {
		return StopFlag{}, err
	}
	return f, nil
}
