package clinic

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert collides with a unique key.
	ErrDuplicate = errors.New("record already exists")
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByTelegramID(ctx context.Context, telegramID int64) (*User, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uint) (*Doctor, error)
	// GetByName returns the first doctor with exactly this name.
	GetByName(ctx context.Context, name string) (*Doctor, error)
	ListSpecialties(ctx context.Context) ([]string, error)
	ListBySpecialty(ctx context.Context, specialty string) ([]*Doctor, error)
}

type ScheduleRepository interface {
	Create(ctx context.Context, s *DoctorSchedule) error
	ListByDoctor(ctx context.Context, doctorID uint) ([]*DoctorSchedule, error)
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uint) (*Appointment, error)
	// ListByUser returns the user's appointments with Doctor populated.
	ListByUser(ctx context.Context, userID uint) ([]*Appointment, error)
}

type ReviewRepository interface {
	Create(ctx context.Context, r *Review) error
	ListByDoctor(ctx context.Context, doctorID uint) ([]*Review, error)
}
