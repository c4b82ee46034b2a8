package runspace

// State is the runspace pool's client-visible lifecycle state,
// [MS-PSRP] §3.1.1.
type State int32

const (
	StateBeforeOpen           State = 0
	StateOpening              State = 1
	StateOpened               State = 2
	StateClosed               State = 3
	StateClosing              State = 4
	StateBroken               State = 5
	StateNegotiationSent      State = 6
	StateNegotiationSucceeded State = 7
	StateConnecting           State = 8
	StateDisconnected         State = 9
)

func (s State) String() string {
	switch s {
	case StateBeforeOpen:
		return "BeforeOpen"
	case StateOpening:
		return "Opening"
	case StateOpened:
		return "Opened"
	case StateClosed:
		return "Closed"
	case StateClosing:
		return "Closing"
	case StateBroken:
		return "Broken"
	case StateNegotiationSent:
		return "NegotiationSent"
	case StateNegotiationSucceeded:
		return "NegotiationSucceeded"
	case StateConnecting:
		return "Connecting"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// validTransitions enumerates the legal state edges. Close, Disconnect,
// BeginConnect, the transport-failure path, and the NegotiationSucceeded and
// Opened cases of RUNSPACEPOOL_STATE check this table; Open only requires
// BeforeOpen. Not every move goes through it: Close sets Closed directly
// without passing through Closing, and a failed capability check or a
// RUNSPACEPOOL_STATE report of Broken, Closed or Disconnected is applied
// without consulting it.
var validTransitions = map[State][]State{
	StateBeforeOpen:           {StateOpening, StateConnecting},
	StateOpening:              {StateNegotiationSent, StateBroken, StateClosed},
	StateNegotiationSent:      {StateNegotiationSucceeded, StateBroken, StateClosed},
	StateNegotiationSucceeded: {StateOpened, StateBroken, StateClosed},
	StateOpened:               {StateClosing, StateBroken, StateDisconnected},
	StateConnecting:           {StateOpened, StateBroken, StateClosed},
	StateDisconnected:         {StateConnecting, StateClosing, StateClosed},
	StateClosing:              {StateClosed},
	StateClosed:               {},
	StateBroken:               {StateClosed},
}

func (s State) canTransitionTo(next State) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
