// Package lifecycle defines the blood request status machine and offer responses.
package lifecycle

import (
	"fmt"
)

// Status is the lifecycle stage of a blood request.
type Status string

const (
	StatusActive    Status = "active"
	StatusPending   Status = "pending"
	StatusMatched   Status = "matched"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

var statuses = map[Status]struct{}{
	StatusActive:    {},
	StatusPending:   {},
	StatusMatched:   {},
	StatusRejected:  {},
	StatusCompleted: {},
}

// ParseStatus rejects anything outside the closed set.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := statuses[st]; !ok {
		return "", fmt.Errorf("unknown request status %q", s)
	}
	return st, nil
}

func (s Status) String() string { return string(s) }

// Scan implements sql.Scanner so a stored status outside the closed set fails
// the read instead of propagating.
func (s *Status) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("scan request status: unsupported type %T", src)
	}
	st, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Open reports whether the request can still receive donor offers.
func (s Status) Open() bool {
	return s == StatusActive || s == StatusPending || s == StatusRejected
}

// Response is a donor's answer to an offer.
type Response string

const (
	ResponsePending  Response = "pending"
	ResponseAccepted Response = "accepted"
	ResponseRejected Response = "rejected"
)

// ParseResponse accepts only the answers a donor may submit.
func ParseResponse(s string) (Response, error) {
	switch r := Response(s); r {
	case ResponseAccepted, ResponseRejected:
		return r, nil
	default:
		return "", fmt.Errorf("response must be %q or %q", ResponseAccepted, ResponseRejected)
	}
}

func (r Response) String() string { return string(r) }

// Label is the capitalized form appended to notification messages.
func (r Response) Label() string {
	switch r {
	case ResponseAccepted:
		return "Accepted"
	case ResponseRejected:
		return "Rejected"
	default:
		return "Pending"
	}
}

// Event drives a status transition.
type Event string

const (
	EventOfferSent    Event = "offer_sent"
	EventDonorAccepts Event = "donor_accepts"
	EventDonorRejects Event = "donor_rejects"
	EventMarkMatched  Event = "mark_matched"
	EventMarkComplete Event = "mark_complete"
)

// Stamp names the timestamp column a transition sets.
type Stamp string

const (
	StampNone      Stamp = ""
	StampMatched   Stamp = "matched_at"
	StampCompleted Stamp = "completed_at"
)

// Transition is one row of the table: any of From moves to To on Event.
type Transition struct {
	Event Event
	From  []Status
	To    Status
	Stamp Stamp
}

// A rejected request re-enters the offer cycle on the next offer; it never
// goes back to active. Every rejection moves a pending request to rejected,
// so offers still outstanding to other donors stay acceptable from there.
var table = map[Event]Transition{
	EventOfferSent:    {EventOfferSent, []Status{StatusActive, StatusRejected}, StatusPending, StampNone},
	EventDonorAccepts: {EventDonorAccepts, []Status{StatusActive, StatusPending, StatusRejected}, StatusMatched, StampMatched},
	EventDonorRejects: {EventDonorRejects, []Status{StatusPending}, StatusRejected, StampNone},
	EventMarkMatched:  {EventMarkMatched, []Status{StatusActive}, StatusMatched, StampMatched},
	EventMarkComplete: {EventMarkComplete, []Status{StatusActive, StatusPending, StatusMatched}, StatusCompleted, StampCompleted},
}

// ErrInvalidTransition is returned when an event does not apply to a status.
type ErrInvalidTransition struct {
	From  Status
	Event Event
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot apply %s to a %s request", e.Event, e.From)
}

// For returns the transition for ev. Unknown events panic since the set is closed.
func For(ev Event) Transition {
	t, ok := table[ev]
	if !ok {
		panic(fmt.Sprintf("lifecycle: unknown event %q", ev))
	}
	return t
}

// Allows reports whether ev applies to from.
func (t Transition) Allows(from Status) bool {
	for _, s := range t.From {
		if s == from {
			return true
		}
	}
	return false
}

// Next returns the transition taken from `from` on ev.
func Next(from Status, ev Event) (Transition, error) {
	t := For(ev)
	if !t.Allows(from) {
		return Transition{}, &ErrInvalidTransition{From: from, Event: ev}
	}
	return t, nil
}

// EventFor maps a donor response to its lifecycle event.
func EventFor(r Response) Event {
	if r == ResponseAccepted {
		return EventDonorAccepts
	}
	return EventDonorRejects
}
