// Package progress provides the event primitives, non-blocking hub, and
// emitter interfaces that sync runs use to report their milestones. Events
// are batched on a background goroutine and fanned out to pluggable sinks
// such as Prometheus metrics or structured logs.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageDiscoveryDone Stage = "DISCOVERY_DONE"
	StageJobSubmitted  Stage = "JOB_SUBMITTED"
	StageJobResumed    Stage = "JOB_RESUMED"
	StageJobPoll       Stage = "JOB_POLL"
	StageDocWritten    Stage = "DOC_WRITTEN"
	StageDocDeleted    Stage = "DOC_DELETED"
	StageRunDone       Stage = "RUN_DONE"
	StageRunError      Stage = "RUN_ERROR"
)

// Event captures a single milestone within one sync run.
type Event struct {
	// RunID uniquely identifies the run emitting the event.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Site is the domain the run operates on.
	Site string
	// Identifier optionally scopes document events to one resource URL.
	Identifier string
	// Completed and Total carry remote job counters on poll events.
	Completed int
	Total     int
	// Dur captures elapsed time for run completions.
	Dur time.Duration
	// Note lets emitters attach low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Site == "" {
		return errors.New("site is required")
	}
	switch e.Stage {
	case StageRunStart, StageDiscoveryDone, StageJobSubmitted, StageJobResumed,
		StageJobPoll, StageRunDone, StageRunError:
	case StageDocWritten, StageDocDeleted:
		if e.Identifier == "" {
			return fmt.Errorf("%s requires identifier", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
