// Package event provides the sink that subprocess output and file change
// notifications are delivered to.
//
// Producers only see the Emitter capability. Emit has no return value: a
// sink that cannot deliver an event drops it, and the producer carries on.
package event

// Event names delivered to the UI.
const (
	// CLIOutput carries one line of subprocess standard output.
	CLIOutput = "cli-output"

	// CLIError carries one line of subprocess standard error.
	CLIError = "cli-error"

	// CLIExit carries the exit summary of a launch.
	CLIExit = "cli-exit"

	// ConfigFileChanged carries the path of a watched file whose
	// modification time changed.
	ConfigFileChanged = "config-file-changed"
)

// Emitter fires a named event with a payload to zero or more listeners.
// Implementations must tolerate concurrent, unordered calls.
type Emitter interface {
	Emit(name string, payload any)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(name string, payload any)

// Emit calls f(name, payload).
func (f EmitterFunc) Emit(name string, payload any) {
	f(name, payload)
}

// Discard is an Emitter that drops every event.
var Discard Emitter = EmitterFunc(func(string, any) {})

// Multi returns an Emitter that forwards each event to every non-nil sink,
// in order.
func Multi(sinks ...Emitter) Emitter {
	out := make([]Emitter, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return multiEmitter(out)
}

type multiEmitter []Emitter

func (m multiEmitter) Emit(name string, payload any) {
	for _, s := range m {
		s.Emit(name, payload)
	}
}

// ExitPayload is the payload of a CLIExit event.
type ExitPayload struct {
	ID         string `json:"id"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int64  `json:"duration_ms"`
}
