package dialog

import (
	"fmt"
	"time"

	"github.com/doctorbot/doctorbot/internal/domain/clinic"
)

// Button is one inline option: what the user sees and what pressing it sends.
type Button struct {
	Label  string
	Action Action
}

// Reply is the single outbound message of a turn.
type Reply struct {
	Text    string
	Buttons []Button
}

// Options projects items into buttons in order.
func Options[T any](items []T, label func(T) string, action func(T) Action) []Button {
	out := make([]Button, 0, len(items))
	for _, it := range items {
		out = append(out, Button{Label: label(it), Action: action(it)})
	}
	return out
}

const dayLabelLayout = "Monday, January 02"

func patientMenu() []Button {
	return []Button{
		{Label: "Book an Appointment", Action: BookAppointment{}},
		{Label: "My Appointments", Action: MyAppointments{}},
	}
}

func doctorMenu() []Button {
	return []Button{
		{Label: "View Schedule", Action: ViewSchedule{}},
		{Label: "My Reviews", Action: MyReviews{}},
	}
}

// menuFor returns the prompt and buttons of the role's main menu.
func menuFor(role clinic.Role) (string, []Button) {
	if role == clinic.RoleDoctor {
		return "Doctor Menu:", doctorMenu()
	}
	return "Please choose an option:", patientMenu()
}

func specialtyOptions(specialties []string) []Button {
	return Options(specialties,
		func(s string) string { return s },
		func(s string) Action { return ChooseSpecialty{Name: s} },
	)
}

func doctorOptions(doctors []*clinic.Doctor) []Button {
	return Options(doctors,
		func(d *clinic.Doctor) string { return d.Name },
		func(d *clinic.Doctor) Action { return ChooseDoctor{ID: d.ID} },
	)
}

// BookableDays returns the dates within horizon days starting at today on
// which any slot recurs. A weekday with several slots yields one date.
func BookableDays(slots []*clinic.DoctorSchedule, today time.Time, horizon int) []time.Time {
	y, m, d := today.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, today.Location())

	var days []time.Time
	for i := 0; i < horizon; i++ {
		day := start.AddDate(0, 0, i)
		for _, s := range slots {
			if s.MatchesDate(day) {
				days = append(days, day)
				break
			}
		}
	}
	return days
}

func dayOptions(days []time.Time) []Button {
	return Options(days,
		func(d time.Time) string { return d.Format(dayLabelLayout) },
		func(d time.Time) Action { return ChooseDay{Date: d} },
	)
}

func confirmOptions() []Button {
	return []Button{
		{Label: "Confirm", Action: ConfirmBooking{}},
		{Label: "Cancel", Action: CancelBooking{}},
	}
}

// reviewOptions offers a review button for each Completed appointment.
func reviewOptions(appts []*clinic.Appointment) []Button {
	var done []*clinic.Appointment
	for _, a := range appts {
		if a.Status == clinic.StatusCompleted {
			done = append(done, a)
		}
	}
	return Options(done,
		func(a *clinic.Appointment) string { return "Leave a review for " + doctorName(a) },
		func(a *clinic.Appointment) Action { return LeaveReview{AppointmentID: a.ID} },
	)
}

func doctorName(a *clinic.Appointment) string {
	if a.Doctor != nil {
		return a.Doctor.Name
	}
	return fmt.Sprintf("doctor #%d", a.DoctorID)
}
