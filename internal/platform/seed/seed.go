// Package seed loads the reference clinic data used for local development
// and demos: two patients, three doctors with weekly slots, one booked
// appointment and one review.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doctorbot/doctorbot/internal/domain/clinic"
	"github.com/rs/zerolog"
)

// ErrAlreadySeeded is returned when the seed users already exist.
var ErrAlreadySeeded = errors.New("store already holds seed data")

// TxFunc runs fn atomically. The memory store runs fn directly.
type TxFunc func(ctx context.Context, fn func(ctx context.Context) error) error

// PurgeFunc deletes every clinic row.
type PurgeFunc func(ctx context.Context) error

type Seeder struct {
	svc    *clinic.Service
	inTx   TxFunc
	purge  PurgeFunc
	loc    *time.Location
	logger zerolog.Logger
}

func New(svc *clinic.Service, inTx TxFunc, purge PurgeFunc, loc *time.Location, logger zerolog.Logger) *Seeder {
	if inTx == nil {
		inTx = func(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Seeder{svc: svc, inTx: inTx, purge: purge, loc: loc, logger: logger}
}

// Summary counts the rows Seed inserted.
type Summary struct {
	Users        int
	Doctors      int
	Schedules    int
	Appointments int
	Reviews      int
}

// Seed inserts the reference data in one transaction. With reset set every
// clinic table is emptied first.
func (s *Seeder) Seed(ctx context.Context, reset bool) (Summary, error) {
	var sum Summary
	err := s.inTx(ctx, func(ctx context.Context) error {
		if reset {
			if s.purge == nil {
				return errors.New("reset is not supported by this store")
			}
			if err := s.purge(ctx); err != nil {
				return err
			}
			s.logger.Info().Msg("clinic tables emptied")
		}
		var err error
		sum, err = s.insert(ctx)
		return err
	})
	if errors.Is(err, clinic.ErrDuplicate) {
		return Summary{}, fmt.Errorf("%w: run with --reset to replace it", ErrAlreadySeeded)
	}
	if err != nil {
		return Summary{}, fmt.Errorf("seed: %w", err)
	}

	s.logger.Info().
		Int("users", sum.Users).
		Int("doctors", sum.Doctors).
		Int("schedules", sum.Schedules).
		Int("appointments", sum.Appointments).
		Int("reviews", sum.Reviews).
		Msg("seed data loaded")
	return sum, nil
}

func (s *Seeder) insert(ctx context.Context) (Summary, error) {
	var sum Summary

	alice := &clinic.User{TelegramID: 12345, FirstName: "Alice", Role: clinic.RolePatient}
	bob := &clinic.User{TelegramID: 67890, FirstName: "Bob", Role: clinic.RolePatient}
	for _, u := range []*clinic.User{alice, bob} {
		if err := s.svc.AddUser(ctx, u); err != nil {
			return sum, fmt.Errorf("add user %s: %w", u.FirstName, err)
		}
		sum.Users++
	}

	smith := &clinic.Doctor{Name: "Dr. Smith", Specialty: "Cardiology", Bio: "Expert in heart health."}
	jones := &clinic.Doctor{Name: "Dr. Jones", Specialty: "Pediatrics", Bio: "Cares for children's health."}
	brown := &clinic.Doctor{Name: "Dr. Brown", Specialty: "Dermatology", Bio: "Specializes in skin conditions."}
	for _, d := range []*clinic.Doctor{smith, jones, brown} {
		if err := s.svc.AddDoctor(ctx, d); err != nil {
			return sum, fmt.Errorf("add doctor %s: %w", d.Name, err)
		}
		sum.Doctors++
	}

	slots := []*clinic.DoctorSchedule{
		{DoctorID: smith.ID, DayOfWeek: 0, StartTime: clinic.MustTimeOfDay("09:00"), EndTime: clinic.MustTimeOfDay("17:00")},
		{DoctorID: jones.ID, DayOfWeek: 1, StartTime: clinic.MustTimeOfDay("10:00"), EndTime: clinic.MustTimeOfDay("18:00")},
	}
	for _, sl := range slots {
		if err := s.svc.AddSchedule(ctx, sl); err != nil {
			return sum, fmt.Errorf("add schedule: %w", err)
		}
		sum.Schedules++
	}

	appt := &clinic.Appointment{
		UserID:          alice.ID,
		DoctorID:        smith.ID,
		AppointmentTime: time.Date(2024, 5, 20, 10, 0, 0, 0, s.loc),
		Status:          clinic.StatusScheduled,
	}
	if err := s.svc.AddAppointment(ctx, appt); err != nil {
		return sum, fmt.Errorf("add appointment: %w", err)
	}
	sum.Appointments++

	review := &clinic.Review{UserID: alice.ID, DoctorID: smith.ID, Rating: 5, Comment: "Excellent doctor!"}
	if err := s.svc.SubmitReview(ctx, review); err != nil {
		return sum, fmt.Errorf("add review: %w", err)
	}
	sum.Reviews++

	return sum, nil
}
