package clinic

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// Role is the kind of account a chat user has.
type Role string

const (
	RolePatient Role = "patient"
	// RoleDoctor is never assigned by the bot; it is provisioned by editing the
	// users table directly.
	RoleDoctor Role = "doctor"
)

func (r Role) Valid() bool {
	return r == RolePatient || r == RoleDoctor
}

// AppointmentStatus tracks an appointment's lifecycle.
type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	// StatusCompleted and StatusCancelled are only set outside the bot.
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// User maps to the users table. TelegramID is unique.
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TelegramID int64     `gorm:"column:telegram_id;uniqueIndex;not null" json:"telegram_id"`
	FirstName  string    `gorm:"column:first_name;type:text" json:"first_name"`
	Role       Role      `gorm:"column:role;not null;default:patient" json:"role"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
}

func (User) TableName() string { return "users" }

// Doctor maps to the doctors table. Doctors are reference data seeded out of band.
type Doctor struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	Specialty string    `gorm:"column:specialty;not null" json:"specialty"`
	Bio       string    `gorm:"column:bio" json:"bio,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Doctor) TableName() string { return "doctors" }

// DoctorSchedule is a recurring weekly availability window. DayOfWeek uses
// 0 = Monday through 6 = Sunday. Overlapping windows are not rejected.
type DoctorSchedule struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	DoctorID  uint      `gorm:"column:doctor_id;not null" json:"doctor_id"`
	DayOfWeek int       `gorm:"column:day_of_week;not null" json:"day_of_week"`
	StartTime TimeOfDay `gorm:"column:start_time" json:"start_time"`
	EndTime   TimeOfDay `gorm:"column:end_time" json:"end_time"`
	IsBooked  bool      `gorm:"column:is_booked;not null;default:false" json:"is_booked"`
}

func (DoctorSchedule) TableName() string { return "doctor_schedules" }

// MatchesDate reports whether the slot recurs on the weekday of t.
func (s *DoctorSchedule) MatchesDate(t time.Time) bool {
	return s.DayOfWeek == MondayIndex(t.Weekday())
}

// Appointment maps to the appointments table.
type Appointment struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	UserID          uint              `gorm:"column:user_id;not null" json:"user_id"`
	DoctorID        uint              `gorm:"column:doctor_id;not null" json:"doctor_id"`
	AppointmentTime time.Time         `gorm:"column:appointment_time;not null" json:"appointment_time"`
	Status          AppointmentStatus `gorm:"column:status;not null;default:scheduled" json:"status"`
	CreatedAt       time.Time         `gorm:"column:created_at" json:"created_at"`

	Doctor *Doctor `gorm:"foreignKey:DoctorID" json:"doctor,omitempty"`
}

func (Appointment) TableName() string { return "appointments" }

// Review maps to the reviews table. Rating is stored as given.
type Review struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"column:user_id;not null" json:"user_id"`
	DoctorID  uint      `gorm:"column:doctor_id;not null" json:"doctor_id"`
	Rating    int       `gorm:"column:rating;not null" json:"rating"`
	Comment   string    `gorm:"column:comment" json:"comment"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Review) TableName() string { return "reviews" }

// MondayIndex converts a time.Weekday (Sunday = 0) to the schedule's
// Monday = 0 numbering.
func MondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// DayName returns the English name for a Monday-based day index.
func DayName(dayOfWeek int) string {
	if dayOfWeek < 0 || dayOfWeek > 6 {
		return fmt.Sprintf("day %d", dayOfWeek)
	}
	return time.Weekday((dayOfWeek + 1) % 7).String()
}

// TimeOfDay is a wall-clock time without a date, stored in a TIME column.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay accepts "15:04" or "15:04:05".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
}

// MustTimeOfDay is ParseTimeOfDay for constants; it panics on bad input.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Value implements driver.Valuer.
func (t TimeOfDay) Value() (driver.Value, error) {
	return fmt.Sprintf("%02d:%02d:00", t.Hour, t.Minute), nil
}

// Scan implements sql.Scanner. Drivers hand TIME back either as text or as a
// time.Time on the zero date.
func (t *TimeOfDay) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*t = TimeOfDay{}
		return nil
	case time.Time:
		*t = TimeOfDay{Hour: v.Hour(), Minute: v.Minute()}
		return nil
	case string:
		parsed, err := ParseTimeOfDay(v)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	case []byte:
		return t.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into TimeOfDay", src)
	}
}
