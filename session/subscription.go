package session

import (
	"strconv"

	"gostomp/frame"
	"gostomp/protocol"
)

// Subscription is one active destination subscription of the session.
type Subscription struct {
	ID          int
	Destination string
	Opts        protocol.SubscribeOptions
}

// subscriptionList keeps active subscriptions in insertion order.
type subscriptionList struct {
	subs []*Subscription
}

func (l *subscriptionList) add(sub *Subscription) {
	l.subs = append(l.subs, sub)
}

// remove drops and returns the subscription with the given id, or nil.
func (l *subscriptionList) remove(id int) *Subscription {
	for i, sub := range l.subs {
		if sub.ID == id {
			l.subs = append(l.subs[:i], l.subs[i+1:]...)
			return sub
		}
	}
	return nil
}

func (l *subscriptionList) len() int {
	return len(l.subs)
}

func (l *subscriptionList) all() []Subscription {
	out := make([]Subscription, len(l.subs))
	for i, sub := range l.subs {
		out[i] = *sub
	}
	return out
}

// byFrame returns the first subscription whose id matches the frame's
// subscription header, or nil. Dispatch is advisory: frames without a
// matching subscription are still delivered to the caller.
func (l *subscriptionList) byFrame(f *frame.Frame) *Subscription {
	want := f.Header.Value(frame.HdrSubscription)
	for _, sub := range l.subs {
		if strconv.Itoa(sub.ID) == want {
			return sub
		}
	}
	return nil
}
