package supervisor

// State represents the connection state of the supervisor.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateSubscribed   State = "subscribed"
	StateTearingDown  State = "tearing_down"
)

// String implements fmt.Stringer.
func (s State) String() string {
	return string(s)
}
