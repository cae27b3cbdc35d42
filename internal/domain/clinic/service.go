package clinic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Service struct {
	users        UserRepository
	doctors      DoctorRepository
	schedules    ScheduleRepository
	appointments AppointmentRepository
	reviews      ReviewRepository
}

func NewService(u UserRepository, d DoctorRepository, s ScheduleRepository, a AppointmentRepository, r ReviewRepository) *Service {
	return &Service{users: u, doctors: d, schedules: s, appointments: a, reviews: r}
}

// -- User --

// RegisterUser creates a patient for telegramID, or returns the existing user
// if one is already registered. created reports whether a row was inserted.
func (s *Service) RegisterUser(ctx context.Context, telegramID int64, firstName string) (u *User, created bool, err error) {
	firstName = strings.TrimSpace(firstName)
	if firstName == "" {
		return nil, false, fmt.Errorf("first_name is required")
	}
	existing, err := s.users.GetByTelegramID(ctx, telegramID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	u = &User{TelegramID: telegramID, FirstName: firstName, Role: RolePatient}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Lost a race with another insert for the same identity.
			existing, getErr := s.users.GetByTelegramID(ctx, telegramID)
			return existing, false, getErr
		}
		return nil, false, err
	}
	return u, true, nil
}

// AddUser inserts a user with an explicit role. Used for seeding.
func (s *Service) AddUser(ctx context.Context, u *User) error {
	if u.Role == "" {
		u.Role = RolePatient
	}
	if !u.Role.Valid() {
		return fmt.Errorf("invalid role: %s", u.Role)
	}
	return s.users.Create(ctx, u)
}

func (s *Service) FindUser(ctx context.Context, telegramID int64) (*User, error) {
	return s.users.GetByTelegramID(ctx, telegramID)
}

// -- Doctor --

func (s *Service) AddDoctor(ctx context.Context, d *Doctor) error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(d.Specialty) == "" {
		return fmt.Errorf("specialty is required")
	}
	return s.doctors.Create(ctx, d)
}

func (s *Service) FindDoctor(ctx context.Context, id uint) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

// FindDoctorByName links a doctor account to its doctors row by display name.
// There is no foreign key between users and doctors.
func (s *Service) FindDoctorByName(ctx context.Context, name string) (*Doctor, error) {
	return s.doctors.GetByName(ctx, name)
}

func (s *Service) ListSpecialties(ctx context.Context) ([]string, error) {
	return s.doctors.ListSpecialties(ctx)
}

func (s *Service) ListDoctorsBySpecialty(ctx context.Context, specialty string) ([]*Doctor, error) {
	return s.doctors.ListBySpecialty(ctx, specialty)
}

// -- Schedule --

func (s *Service) AddSchedule(ctx context.Context, sched *DoctorSchedule) error {
	if sched.DoctorID == 0 {
		return fmt.Errorf("doctor_id is required")
	}
	if sched.DayOfWeek < 0 || sched.DayOfWeek > 6 {
		return fmt.Errorf("day_of_week must be between 0 and 6, got %d", sched.DayOfWeek)
	}
	return s.schedules.Create(ctx, sched)
}

func (s *Service) ListSchedule(ctx context.Context, doctorID uint) ([]*DoctorSchedule, error) {
	return s.schedules.ListByDoctor(ctx, doctorID)
}

// -- Appointment --

// BookAppointment records a Scheduled appointment. Booking the same doctor and
// time twice creates two rows.
func (s *Service) BookAppointment(ctx context.Context, userID, doctorID uint, at time.Time) (*Appointment, error) {
	a := &Appointment{
		UserID:          userID,
		DoctorID:        doctorID,
		AppointmentTime: at,
		Status:          StatusScheduled,
	}
	if err := s.AddAppointment(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// AddAppointment inserts an appointment with any valid status.
func (s *Service) AddAppointment(ctx context.Context, a *Appointment) error {
	if a.UserID == 0 {
		return fmt.Errorf("user_id is required")
	}
	if a.DoctorID == 0 {
		return fmt.Errorf("doctor_id is required")
	}
	if a.AppointmentTime.IsZero() {
		return fmt.Errorf("appointment_time is required")
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if !a.Status.Valid() {
		return fmt.Errorf("invalid appointment status: %s", a.Status)
	}
	return s.appointments.Create(ctx, a)
}

func (s *Service) FindAppointment(ctx context.Context, id uint) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, userID uint) ([]*Appointment, error) {
	return s.appointments.ListByUser(ctx, userID)
}

// -- Review --

func (s *Service) SubmitReview(ctx context.Context, r *Review) error {
	if r.UserID == 0 {
		return fmt.Errorf("user_id is required")
	}
	if r.DoctorID == 0 {
		return fmt.Errorf("doctor_id is required")
	}
	return s.reviews.Create(ctx, r)
}

func (s *Service) ListReviews(ctx context.Context, doctorID uint) ([]*Review, error) {
	return s.reviews.ListByDoctor(ctx, doctorID)
}
