package dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doctorbot/doctorbot/internal/domain/clinic"
)

const (
	textWelcome       = "Welcome to the Doctor Bot! What is your first name?"
	textIdle          = "Send /start to begin."
	textNoSpecialties = "No doctors are available yet."
	textBooked        = "Your appointment has been booked successfully!"
	textBookCancelled = "Booking cancelled."
	textNoAppts       = "You have no appointments."
	textAskReview     = "Please enter your review (rating 1-5 and a comment):"
	textThanksReview  = "Thank you for your review!"
	textNoReviews     = "You have no reviews."
	textNoSlots       = "You have no schedule slots."
	timeLayout        = "2006-01-02 15:04"
)

// maxListedAppointments bounds the My Appointments reply; the most recent are kept.
const maxListedAppointments = 20

// Config tunes a Machine.
type Config struct {
	// HorizonDays is how many days, starting today, are offered for booking.
	HorizonDays int
	// Location is used for "today" and for the instant a booked day maps to.
	Location *time.Location
	// StrictRating rejects ratings outside 1..5.
	StrictRating bool
	// Now defaults to time.Now.
	Now func() time.Time
}

// Machine runs conversations against the clinic service.
type Machine struct {
	svc      *clinic.Service
	sessions *Sessions
	cfg      Config
}

func NewMachine(svc *clinic.Service, sessions *Sessions, cfg Config) *Machine {
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 7
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Machine{svc: svc, sessions: sessions, cfg: cfg}
}

// State returns identity's current state.
func (m *Machine) State(identity int64) State {
	return m.sessions.State(identity)
}

// Restore puts identity back into st, e.g. when the reply to the turn that
// left st could not be delivered.
func (m *Machine) Restore(identity int64, st State) {
	m.sessions.Set(identity, st)
}

// Handle runs one turn for identity. On success the conversation moves to the
// next state and the reply should be sent. On error the state is unchanged.
func (m *Machine) Handle(ctx context.Context, identity int64, ev Event) (Reply, error) {
	c := m.sessions.lock(identity)
	defer c.mu.Unlock()

	next, reply, err := m.step(ctx, identity, c.state, ev)
	if err != nil {
		return Reply{}, err
	}
	c.state = next
	return reply, nil
}

func (m *Machine) step(ctx context.Context, identity int64, cur State, ev Event) (State, Reply, error) {
	if _, ok := ev.(Start); ok {
		return m.start(ctx, identity)
	}

	switch st := cur.(type) {
	case nil:
		return nil, Reply{Text: textIdle}, nil
	case AskingForName:
		if t, ok := ev.(Text); ok {
			return m.receiveName(ctx, identity, t.Body)
		}
	case SelectingAction:
		if p, ok := ev.(Press); ok {
			return m.selectAction(ctx, identity, p.Action)
		}
	case SelectingSpecialty:
		if p, ok := ev.(Press); ok {
			if a, ok := p.Action.(ChooseSpecialty); ok {
				return m.chooseSpecialty(ctx, a.Name)
			}
		}
	case SelectingDoctor:
		if p, ok := ev.(Press); ok {
			if a, ok := p.Action.(ChooseDoctor); ok {
				return m.chooseDoctor(ctx, st, a.ID)
			}
		}
	case SelectingTime:
		if p, ok := ev.(Press); ok {
			if a, ok := p.Action.(ChooseDay); ok {
				return m.chooseDay(ctx, st, a.Date)
			}
		}
	case Booking:
		if p, ok := ev.(Press); ok {
			switch p.Action.(type) {
			case ConfirmBooking:
				return m.confirmBooking(ctx, identity, st)
			case CancelBooking:
				return m.menu(clinic.RolePatient, textBookCancelled)
			}
		}
	case LeavingReview:
		if p, ok := ev.(Press); ok {
			if a, ok := p.Action.(LeaveReview); ok {
				return m.askForReview(ctx, identity, a.AppointmentID)
			}
			return m.selectAction(ctx, identity, p.Action)
		}
	case ReceivingReview:
		if t, ok := ev.(Text); ok {
			return m.receiveReview(ctx, st, t.Body)
		}
	}
	return nil, Reply{}, fmt.Errorf("%w: %s in %s", ErrUnexpectedEvent, ev.Kind(), StateName(cur))
}

// menu returns to SelectingAction showing the role's menu, prefixed by lead.
func (m *Machine) menu(role clinic.Role, lead string) (State, Reply, error) {
	prompt, buttons := menuFor(role)
	return SelectingAction{}, Reply{Text: join(lead, prompt), Buttons: buttons}, nil
}

func (m *Machine) start(ctx context.Context, identity int64) (State, Reply, error) {
	u, err := m.svc.FindUser(ctx, identity)
	if errors.Is(err, clinic.ErrNotFound) {
		return AskingForName{}, Reply{Text: textWelcome}, nil
	}
	if err != nil {
		return nil, Reply{}, fmt.Errorf("find user: %w", err)
	}
	return m.menu(u.Role, fmt.Sprintf("Welcome back, %s!", u.FirstName))
}

func (m *Machine) receiveName(ctx context.Context, identity int64, name string) (State, Reply, error) {
	u, _, err := m.svc.RegisterUser(ctx, identity, name)
	if err != nil {
		return nil, Reply{}, fmt.Errorf("register user: %w", err)
	}
	return m.menu(u.Role, fmt.Sprintf("Thanks, %s! I've saved your name.", u.FirstName))
}

func (m *Machine) selectAction(ctx context.Context, identity int64, a Action) (State, Reply, error) {
	u, err := m.svc.FindUser(ctx, identity)
	if err != nil {
		return nil, Reply{}, fmt.Errorf("find user: %w", err)
	}

	switch a.(type) {
	case BookAppointment:
		if u.Role == clinic.RolePatient {
			return m.listSpecialties(ctx)
		}
	case MyAppointments:
		if u.Role == clinic.RolePatient {
			return m.myAppointments(ctx, u)
		}
	case ViewSchedule:
		if u.Role == clinic.RoleDoctor {
			return m.viewSchedule(ctx, u)
		}
	case MyReviews:
		if u.Role == clinic.RoleDoctor {
			return m.myReviews(ctx, u)
		}
	}
	return nil, Reply{}, fmt.Errorf("%w: %T for %s", ErrUnexpectedEvent, a, u.Role)
}

func (m *Machine) listSpecialties(ctx context.Context) (State, Reply, error) {
	specialties, err := m.svc.ListSpecialties(ctx)
	if err != nil {
		return nil, Reply{}, fmt.Errorf("list specialties: %w", err)
	}
	if len(specialties) == 0 {
		return m.menu(clinic.RolePatient, textNoSpecialties)
	}
	return SelectingSpecialty{}, Reply{
		Text:    "Please choose a specialty:",
		Buttons: specialtyOptions(specialties),
	}, nil
}

func (m *Machine) chooseSpecialty(ctx context.Context, specialty string) (State, Reply, error) {
	doctors, err := m.svc.ListDoctorsBySpecialty(ctx, specialty)
	if err != nil {
		return nil, Reply{}, fmt.Errorf("list doctors: %w", err)
	}
	if len(doctors) == 0 {
		return m.menu(clinic.RolePatient, fmt.Sprintf("No doctors found for %s.", specialty))
	}
	return SelectingDoctor{Specialty: specialty}, Reply{
		Text:    "Please choose a doctor:",
		Buttons: doctorOptions(doctors),
	}, nil
}

func (m *Machine) chooseDoctor(ctx context.Context, st SelectingDoctor, doctorID uint) (State, Reply, error) {
	slots, err := m.svc.ListSchedule(ctx, doctorID)
	if err != nil {
		return nil, Reply{}, fmt.Errorf("list schedule: %w", err)
	}
	days := BookableDays(slots, m.cfg.Now().In(m.cfg.Location), m.cfg.HorizonDays)
	if len(days) == 0 {
		return m.menu(clinic.RolePatient, fmt.Sprintf("No available days in the next %d days.", m.cfg.HorizonDays))
	}
	return SelectingTime{Specialty: st.Specialty, DoctorID: doctorID}, Reply{
		Text:    "Please choose a day:",
		Buttons: dayOptions(days),
	}, nil
}

func (m *Machine) chooseDay(ctx context.Context, st SelectingTime, date time.Time) (State, Reply, error) {
	doc, err := m.svc.FindDoctor(ctx, st.DoctorID)
	if err != nil {
		return nil, Reply{}, fmt.Errorf("find doctor: %w", err)
	}
	y, mo, d := date.Date()
	day := time.Date(y, mo, d, 0, 0, 0, 0, m.cfg.Location)
	return Booking{DoctorID: st.DoctorID, Day: day}, Reply{
		Text:    fmt.Sprintf("Book an appointment with %s on %s?", doc.Name, day.Format(dayLabelLayout)),
		Buttons: confirmOptions(),
	}, nil
}

func (m *Machine) confirmBooking(ctx context.Context, identity int64, st Booking) (State, Reply, error) {
	u, err := m.svc.FindUser(ctx, identity)
	if err != nil {
		return nil, Reply{}, fmt.Errorf("find user: %w", err)
	}
	if _, err := m.svc.BookAppointment(ctx, u.ID, st.DoctorID, st.Day); err != nil {
		return nil, Reply{}, fmt.Errorf("book appointment: %w", err)
	}
	return m.menu(u.Role, textBooked)
}

func (m *Machine) myAppointments(ctx context.Context, u *clinic.User) (State, Reply, error) {
	appts, err := m.svc.ListAppointments(ctx, u.ID)
	if err != nil {
		return nil, Reply{}, fmt.Errorf("list appointments: %w", err)
	}
	if len(appts) == 0 {
		return m.menu(u.Role, textNoAppts)
	}

	// Keep the message and its keyboard within Telegram's limits.
	var b strings.Builder
	b.WriteString("Your appointments:\n")
	if hidden := len(appts) - maxListedAppointments; hidden > 0 {
		appts = appts[hidden:]
		fmt.Fprintf(&b, "(%d older appointments not shown)\n", hidden)
	}
	for _, a := range appts {
		fmt.Fprintf(&b, "- %s on %s (%s)\n",
			doctorName(a), a.AppointmentTime.In(m.cfg.Location).Format(timeLayout), a.Status)
	}
	buttons := reviewOptions(appts)
	buttons = append(buttons, patientMenu()...)
	return LeavingReview{}, Reply{Text: strings.TrimRight(b.String(), "\n"), Buttons: buttons}, nil
}

func (m *Machine) askForReview(ctx context.Context, identity int64, appointmentID uint) (State, Reply, error) {
	u, err := m.svc.FindUser(ctx, identity)
	if err != nil {
		return nil, Reply{}, fmt.Errorf("find user: %w", err)
	}
	a, err := m.svc.FindAppointment(ctx, appointmentID)
	if errors.Is(err, clinic.ErrNotFound) {
		return nil, Reply{}, fmt.Errorf("%w: appointment %d not found", ErrReviewNotAllowed, appointmentID)
	}
	if err != nil {
		return nil, Reply{}, fmt.Errorf("find appointment: %w", err)
	}
	if a.UserID != u.ID || a.Status != clinic.StatusCompleted {
		return nil, Reply{}, fmt.Errorf("%w: appointment %d is %s", ErrReviewNotAllowed, a.ID, a.Status)
	}
	return ReceivingReview{AppointmentID: a.ID}, Reply{Text: textAskReview}, nil
}

func (m *Machine) receiveReview(ctx context.Context, st ReceivingReview, text string) (State, Reply, error) {
	r, err := ParseReview(text, m.cfg.StrictRating)
	if err != nil {
		return nil, Reply{}, err
	}
	a, err := m.svc.FindAppointment(ctx, st.AppointmentID)
	if err != nil {
		return nil, Reply{}, fmt.Errorf("find appointment: %w", err)
	}
	err = m.svc.SubmitReview(ctx, &clinic.Review{
		UserID:   a.UserID,
		DoctorID: a.DoctorID,
		Rating:   r.Rating,
		Comment:  r.Comment,
	})
	if err != nil {
		return nil, Reply{}, fmt.Errorf("submit review: %w", err)
	}
	return m.menu(clinic.RolePatient, textThanksReview)
}

// doctorProfile finds the doctors row for a doctor account by display name.
func (m *Machine) doctorProfile(ctx context.Context, u *clinic.User) (*clinic.Doctor, error) {
	d, err := m.svc.FindDoctorByName(ctx, u.FirstName)
	if errors.Is(err, clinic.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrNoDoctorProfile, u.FirstName)
	}
	if err != nil {
		return nil, fmt.Errorf("find doctor: %w", err)
	}
	return d, nil
}

func (m *Machine) viewSchedule(ctx context.Context, u *clinic.User) (State, Reply, error) {
	d, err := m.doctorProfile(ctx, u)
	if err != nil {
		return nil, Reply{}, err
	}
	slots, err := m.svc.ListSchedule(ctx, d.ID)
	if err != nil {
		return nil, Reply{}, fmt.Errorf("list schedule: %w", err)
	}
	if len(slots) == 0 {
		return m.menu(u.Role, textNoSlots)
	}

	var b strings.Builder
	b.WriteString("Your schedule:")
	for _, s := range slots {
		fmt.Fprintf(&b, "\n- %s %s-%s", clinic.DayName(s.DayOfWeek), s.StartTime, s.EndTime)
	}
	return m.menu(u.Role, b.String())
}

func (m *Machine) myReviews(ctx context.Context, u *clinic.User) (State, Reply, error) {
	d, err := m.doctorProfile(ctx, u)
	if err != nil {
		return nil, Reply{}, err
	}
	reviews, err := m.svc.ListReviews(ctx, d.ID)
	if err != nil {
		return nil, Reply{}, fmt.Errorf("list reviews: %w", err)
	}
	if len(reviews) == 0 {
		return m.menu(u.Role, textNoReviews)
	}

	var b strings.Builder
	b.WriteString("Your reviews:")
	for _, r := range reviews {
		fmt.Fprintf(&b, "\n- %d/5: %s", r.Rating, r.Comment)
	}
	return m.menu(u.Role, b.String())
}

func join(lead, prompt string) string {
	if lead == "" {
		return prompt
	}
	return lead + "\n\n" + prompt
}
