// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package confirm

import (
	"log/slog"
	"time"
)

type (
	// Operation is the kind of outbound operation being confirmed.
	Operation int

	// Outcome is how a confirmation ended. Exactly one outcome is recorded
	// per tracked operation.
	Outcome int

	// Result describes one finished confirmation.
	Result struct {
		Operation Operation
		TraceID   string
		Outcome   Outcome
		Elapsed   time.Duration
	}

	// Stats counts confirmations since the tracker was created.
	Stats struct {
		Tracked   uint64
		Succeeded uint64
		Failed    uint64
		TimedOut  uint64
		Aborted   uint64
		Discarded uint64
		InFlight  int
	}

	// Summary reports what Shutdown did with the confirmations still in
	// flight when it was called.
	Summary struct {
		Pending int
		Drained int
		Aborted int
	}
)

const (
	Telemetry Operation = iota
	ReportedState
)

const (
	// Succeeded means the native SDK confirmed delivery.
	Succeeded Outcome = iota
	// Failed means the native SDK reported a failed delivery.
	Failed
	// TimedOut means no confirmation arrived in time.
	TimedOut
	// Aborted means shutdown stopped waiting.
	Aborted
)

func (o Operation) String() string {
	switch o {
	case Telemetry:
		return "telemetry"
	case ReportedState:
		return "reported state"
	default:
		return "unknown"
	}
}

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed out"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// LogValue implements slog.LogValuer.
func (r Result) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("operation", r.Operation.String()),
		slog.String("trace_id", r.TraceID),
		slog.String("outcome", r.Outcome.String()),
		slog.Duration("elapsed", r.Elapsed),
	)
}
