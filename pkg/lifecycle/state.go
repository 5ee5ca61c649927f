// Package lifecycle runs the platform's network services: the gateway and
// every verifying microservice. A [Service] owns one or more servers
// (HTTP, gRPC), runs startup hooks such as key preloading before it
// accepts traffic, and shuts its servers down gracefully.
//
// # Service Lifecycle
//
// Every service follows a finite state machine. The [State] type is the
// service's position in it, and all transitions are checked against
// [ValidTransition]:
//
//	Unknown → Starting → Running → Stopping → Stopped
//
// Any non-terminal state may transition to Failed. A service whose start
// hook fails (for example, because its public key cannot be decoded)
// never reaches Running and never opens a listener.
//
// # Thread Safety
//
// State is guarded by a [sync.RWMutex]. [Service.Start], [Service.Stop],
// [Service.State] and [Service.Health] are safe for concurrent use.
//
// # OpenTelemetry Integration
//
// Start and Stop create spans under the tracer scope
// "github.com/StricklySoft/academic-platform/pkg/lifecycle".
package lifecycle

// State is the lifecycle state of a [Service].
type State string

const (
	// StateUnknown is the state of a service that has not been started.
	StateUnknown State = "unknown"

	// StateStarting is set while start hooks run and listeners open.
	StateStarting State = "starting"

	// StateRunning means every server is accepting connections. It is the
	// only state in which [Service.Health] reports healthy.
	StateRunning State = "running"

	// StateStopping is set while servers drain in-flight requests.
	StateStopping State = "stopping"

	// StateStopped is the terminal state of a clean shutdown.
	StateStopped State = "stopped"

	// StateFailed is the terminal state of a failed start, a failed
	// shutdown or a server that stopped serving on its own.
	StateFailed State = "failed"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// Valid reports whether s is a recognized state.
func (s State) Valid() bool {
	switch s {
	case StateUnknown, StateStarting, StateRunning,
		StateStopping, StateStopped, StateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is [StateStopped] or [StateFailed].
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// validTransitions is the transition matrix:
//
//	Unknown  → Starting, Failed
//	Starting → Running, Stopping, Failed
//	Running  → Stopping, Failed
//	Stopping → Stopped, Failed
//
// Terminal states have no outgoing transitions; a process restarts by
// building a new Service.
var validTransitions = map[State][]State{
	StateUnknown:  {StateStarting, StateFailed},
	StateStarting: {StateRunning, StateStopping, StateFailed},
	StateRunning:  {StateStopping, StateFailed},
	StateStopping: {StateStopped, StateFailed},
}

// ValidTransition reports whether from may move to to. Same-state
// transitions are rejected.
func ValidTransition(from, to State) bool {
	if from == to {
		return false
	}
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
