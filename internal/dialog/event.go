package dialog

import "time"

// Event is one inbound user action.
type Event interface {
	Kind() string
	event()
}

// Start is the /start command. It is accepted in every state.
type Start struct{}

// Command is any other slash command. No state accepts one.
type Command struct {
	Name string
}

// Text is a free-text message.
type Text struct {
	Body string
}

// Press is an inline button press carrying a decoded Action.
type Press struct {
	Action Action
}

func (Start) event()   {}
func (Command) event() {}
func (Text) event()    {}
func (Press) event()   {}

func (Start) Kind() string   { return "start" }
func (Command) Kind() string { return "command" }
func (Text) Kind() string    { return "text" }
func (Press) Kind() string   { return "press" }

// Action is the typed payload behind an inline button.
type Action interface {
	action()
}

type (
	BookAppointment struct{}
	MyAppointments  struct{}
	ViewSchedule    struct{}
	MyReviews       struct{}
	ConfirmBooking  struct{}
	CancelBooking   struct{}
)

type ChooseSpecialty struct {
	Name string
}

type ChooseDoctor struct {
	ID uint
}

// ChooseDay carries a civil date. Only the year, month and day are meaningful.
type ChooseDay struct {
	Date time.Time
}

type LeaveReview struct {
	AppointmentID uint
}

func (BookAppointment) action() {}
func (MyAppointments) action()  {}
func (ViewSchedule) action()    {}
func (MyReviews) action()       {}
func (ConfirmBooking) action()  {}
func (CancelBooking) action()   {}
func (ChooseSpecialty) action() {}
func (ChooseDoctor) action()    {}
func (ChooseDay) action()       {}
func (LeaveReview) action()     {}
