package runconfig

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"
)

// TuningOverrides is the subset of Config a running scan may adjust
// without a restart: the circuit breaker settings, thinker request
// concurrency and streaming, all safe to change mid-run.
type TuningOverrides struct {
	CircuitFailureThreshold       *int     `json:"circuit_failure_threshold,omitempty"`
	CircuitRecoveryTimeoutSeconds *float64 `json:"circuit_recovery_timeout_seconds,omitempty"`
	MaxConcurrentThinkerRequests  *int     `json:"max_concurrent_thinker_requests,omitempty"`
	StreamingEnabled              *bool    `json:"streaming_enabled,omitempty"`
}

// WatchTuningFile watches path for writes and invokes onChange with the
// parsed overrides each time it changes, until stop is closed. Malformed
// files are logged and skipped rather than applied.
func WatchTuningFile(path string, log *slog.Logger, stop <-chan struct{}, onChange func(TuningOverrides)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				overrides, err := loadTuningFile(path)
				if err != nil {
					log.Warn("ignoring malformed tuning file", "path", path, "err", err)
					continue
				}
				onChange(overrides)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("tuning file watcher error", "err", err)
			}
		}
	}()
	return nil
}

func loadTuningFile(path string) (TuningOverrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TuningOverrides{}, err
	}
	var out TuningOverrides
	if err := json.Unmarshal(data, &out); err != nil {
		return TuningOverrides{}, err
	}
	return out, nil
}
