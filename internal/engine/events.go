package engine

import (
	"time"
)

// EventType captures lifecycle notifications emitted by the orchestrator.
type EventType string

const (
	EventTypeStarting EventType = "starting"
	EventTypeStarted  EventType = "started"
	EventTypeReady    EventType = "ready"
	EventTypeExited   EventType = "exited"
	EventTypeStopping EventType = "stopping"
	EventTypeStopped  EventType = "stopped"
	EventTypeError    EventType = "error"
)

// Process names used in events and logs.
const (
	ProcessServer = "server"
	ProcessRunner = "runner"
)

// Event represents a single lifecycle notification.
type Event struct {
	Timestamp time.Time
	Process   string
	Type      EventType
	Message   string
	Level     string
	Err       error
	Reason    string
}

const (
	ReasonServerStart    = "server_start"
	ReasonStartFailure   = "start_failure"
	ReasonProbeReady     = "probe_ready"
	ReasonProbeFailed    = "probe_failed"
	ReasonRunnerStart    = "runner_start"
	ReasonRunnerExit     = "runner_exit"
	ReasonRunnerError    = "runner_error"
	ReasonRunnerTimeout  = "runner_timeout"
	ReasonCleanup        = "cleanup"
	ReasonStopFailed     = "stop_failed"
	ReasonServerLingered = "server_lingered"
)

func (o *Orchestrator) emit(process string, t EventType, level, message, reason string, err error) {
	if level == "" {
		level = "info"
	}
	event := Event{
		Timestamp: o.now(),
		Process:   process,
		Type:      t,
		Message:   message,
		Level:     level,
		Err:       err,
		Reason:    reason,
	}

	log := o.log.With("process", process, "event", string(t), "reason", reason)
	switch level {
	case "error":
		log.Errorw(message, "error", err)
	case "warn":
		if err != nil {
			log.Warnw(message, "error", err)
		} else {
			log.Warnw(message)
		}
	default:
		log.Infow(message)
	}

	if o.events == nil {
		return
	}
	o.events <- event
}
