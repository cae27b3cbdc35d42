// Package dialog implements the per-user conversation that takes a patient
// from registration through booking and reviewing, and a doctor through their
// schedule and reviews.
//
// A conversation is always in exactly one State. Each State value carries only
// the scratch data that step needs and is rebuilt on every transition, so no
// field from an earlier step can leak into a later one.
package dialog

import (
	"fmt"
	"time"
)

// State is the position of a conversation in the flow.
type State interface {
	fmt.Stringer
	state()
}

// AskingForName waits for an unregistered user's first name.
type AskingForName struct{}

// SelectingAction is the idle state: the role menu has been shown.
type SelectingAction struct{}

// SelectingSpecialty waits for a specialty button.
type SelectingSpecialty struct{}

// SelectingDoctor waits for a doctor within Specialty.
type SelectingDoctor struct {
	Specialty string
}

// SelectingTime waits for a day on which DoctorID works.
type SelectingTime struct {
	Specialty string
	DoctorID  uint
}

// Booking waits for the user to confirm or cancel DoctorID on Day.
type Booking struct {
	DoctorID uint
	Day      time.Time
}

// LeavingReview shows the user's appointments and waits for a review button.
type LeavingReview struct{}

// ReceivingReview waits for the review text for AppointmentID.
type ReceivingReview struct {
	AppointmentID uint
}

func (AskingForName) state()      {}
func (SelectingAction) state()    {}
func (SelectingSpecialty) state() {}
func (SelectingDoctor) state()    {}
func (SelectingTime) state()      {}
func (Booking) state()            {}
func (LeavingReview) state()      {}
func (ReceivingReview) state()    {}

func (AskingForName) String() string      { return "asking_for_name" }
func (SelectingAction) String() string    { return "selecting_action" }
func (SelectingSpecialty) String() string { return "selecting_specialty" }
func (SelectingDoctor) String() string    { return "selecting_doctor" }
func (SelectingTime) String() string      { return "selecting_time" }
func (Booking) String() string            { return "booking" }
func (LeavingReview) String() string      { return "leaving_review" }
func (ReceivingReview) String() string    { return "receiving_review" }

// StateName returns s.String(), or "idle" for a conversation that has not
// started.
func StateName(s State) string {
	if s == nil {
		return "idle"
	}
	return s.String()
}
