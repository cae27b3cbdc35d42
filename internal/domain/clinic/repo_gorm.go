package clinic

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/doctorbot/doctorbot/internal/platform/db"
)

// conn returns the transaction bound to ctx, if any, otherwise the shared
// handle. Each call checks a pooled connection out for one statement only.
func conn(ctx context.Context, base *gorm.DB) *gorm.DB {
	if tx := db.GormFromContext(ctx); tx != nil {
		return tx.WithContext(ctx)
	}
	return base.WithContext(ctx)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%w: referenced row is missing", ErrNotFound)
	}
	return err
}

// NewGormService wires a Service to gorm repositories on gdb.
func NewGormService(gdb *gorm.DB) *Service {
	return NewService(
		NewUserRepoGorm(gdb),
		NewDoctorRepoGorm(gdb),
		NewScheduleRepoGorm(gdb),
		NewAppointmentRepoGorm(gdb),
		NewReviewRepoGorm(gdb),
	)
}

// purgeOrder lists tables children first so foreign keys never block a delete.
var purgeOrder = []string{"reviews", "appointments", "doctor_schedules", "doctors", "users"}

// PurgeGorm deletes every row from the clinic tables.
func PurgeGorm(ctx context.Context, gdb *gorm.DB) error {
	tx := conn(ctx, gdb)
	for _, table := range purgeOrder {
		if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("purge %s: %w", table, err)
		}
	}
	return nil
}

// =========== User Repository ===========

type userRepoGorm struct{ db *gorm.DB }

func NewUserRepoGorm(gdb *gorm.DB) UserRepository { return &userRepoGorm{db: gdb} }

func (r *userRepoGorm) Create(ctx context.Context, u *User) error {
	res := conn(ctx, r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "telegram_id"}}, DoNothing: true}).
		Create(u)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

func (r *userRepoGorm) GetByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	var u User
	if err := conn(ctx, r.db).Where("telegram_id = ?", telegramID).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// =========== Doctor Repository ===========

type doctorRepoGorm struct{ db *gorm.DB }

func NewDoctorRepoGorm(gdb *gorm.DB) DoctorRepository { return &doctorRepoGorm{db: gdb} }

func (r *doctorRepoGorm) Create(ctx context.Context, d *Doctor) error {
	return translate(conn(ctx, r.db).Create(d).Error)
}

func (r *doctorRepoGorm) GetByID(ctx context.Context, id uint) (*Doctor, error) {
	var d Doctor
	if err := conn(ctx, r.db).First(&d, id).Error; err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (r *doctorRepoGorm) GetByName(ctx context.Context, name string) (*Doctor, error) {
	var d Doctor
	if err := conn(ctx, r.db).Where("name = ?", name).Order("id").First(&d).Error; err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (r *doctorRepoGorm) ListSpecialties(ctx context.Context) ([]string, error) {
	var specialties []string
	err := conn(ctx, r.db).Model(&Doctor{}).
		Distinct("specialty").
		Order("specialty").
		Pluck("specialty", &specialties).Error
	return specialties, translate(err)
}

func (r *doctorRepoGorm) ListBySpecialty(ctx context.Context, specialty string) ([]*Doctor, error) {
	var doctors []*Doctor
	err := conn(ctx, r.db).Where("specialty = ?", specialty).Order("name, id").Find(&doctors).Error
	return doctors, translate(err)
}

// =========== Schedule Repository ===========

type scheduleRepoGorm struct{ db *gorm.DB }

func NewScheduleRepoGorm(gdb *gorm.DB) ScheduleRepository { return &scheduleRepoGorm{db: gdb} }

func (r *scheduleRepoGorm) Create(ctx context.Context, s *DoctorSchedule) error {
	return translate(conn(ctx, r.db).Create(s).Error)
}

func (r *scheduleRepoGorm) ListByDoctor(ctx context.Context, doctorID uint) ([]*DoctorSchedule, error) {
	var items []*DoctorSchedule
	err := conn(ctx, r.db).Where("doctor_id = ?", doctorID).Order("day_of_week, start_time, id").Find(&items).Error
	return items, translate(err)
}

// =========== Appointment Repository ===========

type appointmentRepoGorm struct{ db *gorm.DB }

func NewAppointmentRepoGorm(gdb *gorm.DB) AppointmentRepository {
	return &appointmentRepoGorm{db: gdb}
}

func (r *appointmentRepoGorm) Create(ctx context.Context, a *Appointment) error {
	return translate(conn(ctx, r.db).Omit(clause.Associations).Create(a).Error)
}

func (r *appointmentRepoGorm) GetByID(ctx context.Context, id uint) (*Appointment, error) {
	var a Appointment
	if err := conn(ctx, r.db).Joins("Doctor").First(&a, "appointments.id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r *appointmentRepoGorm) ListByUser(ctx context.Context, userID uint) ([]*Appointment, error) {
	var items []*Appointment
	err := conn(ctx, r.db).Joins("Doctor").
		Where("appointments.user_id = ?", userID).
		Order("appointments.appointment_time, appointments.id").
		Find(&items).Error
	return items, translate(err)
}

// =========== Review Repository ===========

type reviewRepoGorm struct{ db *gorm.DB }

func NewReviewRepoGorm(gdb *gorm.DB) ReviewRepository { return &reviewRepoGorm{db: gdb} }

func (r *reviewRepoGorm) Create(ctx context.Context, rv *Review) error {
	return translate(conn(ctx, r.db).Create(rv).Error)
}

func (r *reviewRepoGorm) ListByDoctor(ctx context.Context, doctorID uint) ([]*Review, error) {
	var items []*Review
	err := conn(ctx, r.db).Where("doctor_id = ?", doctorID).Order("created_at, id").Find(&items).Error
	return items, translate(err)
}
