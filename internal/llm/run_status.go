package llm

// RunState es el estado reportado por el proveedor para un run.
type RunState string

const (
	RunQueued         RunState = "queued"
	RunInProgress     RunState = "in_progress"
	RunRequiresAction RunState = "requires_action"
	RunCancelling     RunState = "cancelling"
	RunCompleted      RunState = "completed"
	RunFailed         RunState = "failed"
	RunCancelled      RunState = "cancelled"
	RunExpired        RunState = "expired"
	RunIncomplete     RunState = "incomplete"
)

type RunStatus struct {
	ID        string
	State     RunState
	LastError string
}

// Terminal indica que el run ya no cambiara de estado. requires_action cuenta
// como terminal porque este servicio nunca envia tool outputs.
func (s RunStatus) Terminal() bool {
	switch s.State {
	case RunCompleted, RunFailed, RunCancelled, RunExpired, RunIncomplete, RunRequiresAction:
		return true
	default:
		return false
	}
}

func (s RunStatus) Succeeded() bool {
	return s.State == RunCompleted
}
