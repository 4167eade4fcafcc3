package checkout

import "fmt"

// State is the position of a checkout session. Transitions are driven by
// Transition; the service around it performs the side effects.
type State string

const (
	StateIdle                  State = "idle"
	StateAwaitingShippingInfo  State = "awaiting_shipping_info"
	StateAwaitingPaymentMethod State = "awaiting_payment_method"
	StateSubmitting            State = "submitting"
	StateCompleted             State = "completed"
	StateFailed                State = "failed"
)

// Event advances a checkout session.
type Event string

const (
	EventStarted             Event = "started"
	EventShippingSubmitted   Event = "shipping_submitted"
	EventShippingRejected    Event = "shipping_rejected"
	EventCouponRejected      Event = "coupon_rejected"
	EventPaymentChosen       Event = "payment_chosen"
	EventSubmissionSucceeded Event = "submission_succeeded"
	EventSubmissionFailed    Event = "submission_failed"
	EventAbandoned           Event = "abandoned"
)

var transitions = map[State]map[Event]State{
	StateIdle: {
		EventStarted: StateAwaitingShippingInfo,
	},
	StateAwaitingShippingInfo: {
		EventShippingSubmitted: StateAwaitingPaymentMethod,
		EventShippingRejected:  StateAwaitingShippingInfo,
		EventAbandoned:         StateIdle,
	},
	StateAwaitingPaymentMethod: {
		// A rejected coupon clears the code but keeps checkout going.
		EventCouponRejected: StateAwaitingPaymentMethod,
		EventPaymentChosen:  StateSubmitting,
		EventAbandoned:      StateIdle,
	},
	StateSubmitting: {
		EventSubmissionSucceeded: StateCompleted,
		EventSubmissionFailed:    StateFailed,
	},
	StateFailed: {
		EventStarted:   StateAwaitingShippingInfo,
		EventAbandoned: StateIdle,
	},
	StateCompleted: {
		EventStarted: StateAwaitingShippingInfo,
	},
}

// Transition applies an event to a state, returning the next state or an
// error when the event is not legal from the current state. Pure: no IO, no
// hidden state.
func Transition(from State, event Event) (State, error) {
	next, ok := transitions[from][event]
	if !ok {
		return from, fmt.Errorf("event %s not allowed in state %s", event, from)
	}
	return next, nil
}
