package clinic

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/doctorbot/doctorbot/internal/platform/db"
	"github.com/doctorbot/doctorbot/migrations"
)

// ===========================================================================
// Helpers
// ===========================================================================

var allModels = []interface{}{&User{}, &Doctor{}, &DoctorSchedule{}, &Appointment{}, &Review{}}

// openSQLite returns a gorm handle on a fresh file database with the clinic
// tables created from the models.
func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "clinic.db")), &gorm.Config{
		Logger:         db.NewGormLogger(zerolog.Nop()),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	if err := gdb.AutoMigrate(allModels...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return gdb
}

// eachStore runs fn once against the gorm repositories and once against
// MemStore so both backends are held to the same behaviour.
func eachStore(t *testing.T, fn func(t *testing.T, svc *Service)) {
	t.Helper()
	t.Run("gorm", func(t *testing.T) { fn(t, NewGormService(openSQLite(t))) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemStore().Service()) })
}

func addDoctor(t *testing.T, svc *Service, name, specialty string) *Doctor {
	t.Helper()
	d := &Doctor{Name: name, Specialty: specialty}
	if err := svc.AddDoctor(context.Background(), d); err != nil {
		t.Fatalf("AddDoctor(%s): %v", name, err)
	}
	return d
}

// ===========================================================================
// Users
// ===========================================================================

func TestRepo_RegisterUser_Idempotent(t *testing.T) {
	eachStore(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()

		first, created, err := svc.RegisterUser(ctx, 12345, "Alice")
		if err != nil || !created {
			t.Fatalf("first RegisterUser: created=%v err=%v", created, err)
		}
		second, created, err := svc.RegisterUser(ctx, 12345, "Someone Else")
		if err != nil {
			t.Fatalf("second RegisterUser: %v", err)
		}
		if created {
			t.Error("expected second registration not to create a row")
		}
		if second.ID != first.ID || second.FirstName != "Alice" {
			t.Errorf("expected existing user %d Alice, got %d %s", first.ID, second.ID, second.FirstName)
		}
		if second.Role != RolePatient {
			t.Errorf("expected default role patient, got %s", second.Role)
		}
	})
}

func TestRepo_CreateUser_DuplicateTelegramID(t *testing.T) {
	eachStore(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		if err := svc.AddUser(ctx, &User{TelegramID: 67890, FirstName: "Bob"}); err != nil {
			t.Fatalf("AddUser: %v", err)
		}
		err := svc.AddUser(ctx, &User{TelegramID: 67890, FirstName: "Bobby"})
		if !errors.Is(err, ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})
}

func TestRepo_RegisterUser_LongName(t *testing.T) {
	eachStore(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		name := strings.Repeat("A", 300)

		if _, _, err := svc.RegisterUser(ctx, 42, name); err != nil {
			t.Fatalf("RegisterUser with a long name: %v", err)
		}
		u, err := svc.FindUser(ctx, 42)
		if err != nil {
			t.Fatalf("FindUser: %v", err)
		}
		if u.FirstName != name {
			t.Errorf("expected the full %d-character name back, got %d characters", len(name), len(u.FirstName))
		}
	})
}

// ===========================================================================
// Lookups
// ===========================================================================

func TestRepo_NotFound(t *testing.T) {
	eachStore(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		if _, err := svc.FindUser(ctx, 999); !errors.Is(err, ErrNotFound) {
			t.Errorf("FindUser: expected ErrNotFound, got %v", err)
		}
		if _, err := svc.FindDoctor(ctx, 999); !errors.Is(err, ErrNotFound) {
			t.Errorf("FindDoctor: expected ErrNotFound, got %v", err)
		}
		if _, err := svc.FindDoctorByName(ctx, "Dr. Nobody"); !errors.Is(err, ErrNotFound) {
			t.Errorf("FindDoctorByName: expected ErrNotFound, got %v", err)
		}
		if _, err := svc.FindAppointment(ctx, 999); !errors.Is(err, ErrNotFound) {
			t.Errorf("FindAppointment: expected ErrNotFound, got %v", err)
		}
	})
}

func TestRepo_SpecialtyFilter(t *testing.T) {
	eachStore(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		addDoctor(t, svc, "Dr. Smith", "Cardiology")
		addDoctor(t, svc, "Dr. Jones", "Pediatrics")
		addDoctor(t, svc, "Dr. Brown", "Cardiology")

		specialties, err := svc.ListSpecialties(ctx)
		if err != nil {
			t.Fatalf("ListSpecialties: %v", err)
		}
		if strings.Join(specialties, ",") != "Cardiology,Pediatrics" {
			t.Errorf("expected distinct sorted specialties, got %v", specialties)
		}

		doctors, err := svc.ListDoctorsBySpecialty(ctx, "Cardiology")
		if err != nil {
			t.Fatalf("ListDoctorsBySpecialty: %v", err)
		}
		if len(doctors) != 2 || doctors[0].Name != "Dr. Brown" || doctors[1].Name != "Dr. Smith" {
			t.Errorf("expected Dr. Brown and Dr. Smith, got %+v", doctors)
		}
		for _, d := range doctors {
			if d.Specialty != "Cardiology" {
				t.Errorf("doctor %s has specialty %s", d.Name, d.Specialty)
			}
		}

		none, err := svc.ListDoctorsBySpecialty(ctx, "Neurology")
		if err != nil {
			t.Fatalf("ListDoctorsBySpecialty(Neurology): %v", err)
		}
		if len(none) != 0 {
			t.Errorf("expected no neurologists, got %d", len(none))
		}
	})
}

func TestRepo_ScheduleOrder(t *testing.T) {
	eachStore(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		d := addDoctor(t, svc, "Dr. Smith", "Cardiology")
		for _, s := range []*DoctorSchedule{
			{DoctorID: d.ID, DayOfWeek: 2, StartTime: MustTimeOfDay("09:00"), EndTime: MustTimeOfDay("12:00")},
			{DoctorID: d.ID, DayOfWeek: 0, StartTime: MustTimeOfDay("14:00"), EndTime: MustTimeOfDay("17:00")},
			{DoctorID: d.ID, DayOfWeek: 0, StartTime: MustTimeOfDay("09:00"), EndTime: MustTimeOfDay("12:00")},
		} {
			if err := svc.AddSchedule(ctx, s); err != nil {
				t.Fatalf("AddSchedule: %v", err)
			}
		}

		slots, err := svc.ListSchedule(ctx, d.ID)
		if err != nil {
			t.Fatalf("ListSchedule: %v", err)
		}
		var got []string
		for _, s := range slots {
			got = append(got, DayName(s.DayOfWeek)+" "+s.StartTime.String()+"-"+s.EndTime.String())
		}
		want := "Monday 09:00-12:00,Monday 14:00-17:00,Wednesday 09:00-12:00"
		if strings.Join(got, ",") != want {
			t.Errorf("expected %s, got %s", want, strings.Join(got, ","))
		}
	})
}

// ===========================================================================
// Booking and reviews
// ===========================================================================

func TestRepo_DuplicateBookingCreatesTwoRows(t *testing.T) {
	eachStore(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		u, _, err := svc.RegisterUser(ctx, 12345, "Alice")
		if err != nil {
			t.Fatalf("RegisterUser: %v", err)
		}
		d := addDoctor(t, svc, "Dr. Smith", "Cardiology")
		at := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)

		a1, err := svc.BookAppointment(ctx, u.ID, d.ID, at)
		if err != nil {
			t.Fatalf("first BookAppointment: %v", err)
		}
		a2, err := svc.BookAppointment(ctx, u.ID, d.ID, at)
		if err != nil {
			t.Fatalf("second BookAppointment: %v", err)
		}
		if a1.ID == a2.ID {
			t.Fatalf("expected two distinct rows, both have id %d", a1.ID)
		}

		appts, err := svc.ListAppointments(ctx, u.ID)
		if err != nil {
			t.Fatalf("ListAppointments: %v", err)
		}
		if len(appts) != 2 {
			t.Fatalf("expected 2 appointments, got %d", len(appts))
		}
		for _, a := range appts {
			if a.Status != StatusScheduled {
				t.Errorf("expected status scheduled, got %s", a.Status)
			}
			if a.Doctor == nil || a.Doctor.Name != "Dr. Smith" {
				t.Errorf("expected Doctor to be populated, got %+v", a.Doctor)
			}
		}
	})
}

// Alice books Dr. Smith (Cardiology) on the Monday slot and later reviews him.
func TestRepo_CardiologyBookingScenario(t *testing.T) {
	eachStore(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		alice, _, err := svc.RegisterUser(ctx, 12345, "Alice")
		if err != nil {
			t.Fatalf("RegisterUser: %v", err)
		}
		smith := addDoctor(t, svc, "Dr. Smith", "Cardiology")
		if err := svc.AddSchedule(ctx, &DoctorSchedule{
			DoctorID:  smith.ID,
			DayOfWeek: 0,
			StartTime: MustTimeOfDay("09:00"),
			EndTime:   MustTimeOfDay("17:00"),
		}); err != nil {
			t.Fatalf("AddSchedule: %v", err)
		}

		specialties, _ := svc.ListSpecialties(ctx)
		if len(specialties) != 1 || specialties[0] != "Cardiology" {
			t.Fatalf("expected [Cardiology], got %v", specialties)
		}
		doctors, _ := svc.ListDoctorsBySpecialty(ctx, "Cardiology")
		if len(doctors) != 1 || doctors[0].ID != smith.ID {
			t.Fatalf("expected Dr. Smith, got %+v", doctors)
		}
		slots, _ := svc.ListSchedule(ctx, smith.ID)
		if len(slots) != 1 || slots[0].StartTime.String() != "09:00" || slots[0].EndTime.String() != "17:00" {
			t.Fatalf("expected Monday 09:00-17:00, got %+v", slots)
		}

		monday := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
		if !slots[0].MatchesDate(monday) {
			t.Fatal("expected the slot to match Monday 2024-05-20")
		}
		booked, err := svc.BookAppointment(ctx, alice.ID, smith.ID, monday)
		if err != nil {
			t.Fatalf("BookAppointment: %v", err)
		}

		appts, err := svc.ListAppointments(ctx, alice.ID)
		if err != nil {
			t.Fatalf("ListAppointments: %v", err)
		}
		if len(appts) != 1 || !appts[0].AppointmentTime.Equal(monday) || appts[0].Doctor.Name != "Dr. Smith" {
			t.Fatalf("unexpected appointments %+v", appts)
		}

		found, err := svc.FindAppointment(ctx, booked.ID)
		if err != nil {
			t.Fatalf("FindAppointment: %v", err)
		}
		if found.UserID != alice.ID || found.Doctor == nil || found.Doctor.Specialty != "Cardiology" {
			t.Errorf("unexpected appointment %+v", found)
		}

		if err := svc.SubmitReview(ctx, &Review{UserID: alice.ID, DoctorID: smith.ID, Rating: 5, Comment: "Great doctor"}); err != nil {
			t.Fatalf("SubmitReview: %v", err)
		}
		reviews, err := svc.ListReviews(ctx, smith.ID)
		if err != nil {
			t.Fatalf("ListReviews: %v", err)
		}
		if len(reviews) != 1 || reviews[0].Rating != 5 || reviews[0].Comment != "Great doctor" {
			t.Errorf("unexpected reviews %+v", reviews)
		}
	})
}

// ===========================================================================
// gorm specifics
// ===========================================================================

func TestTranslate(t *testing.T) {
	if translate(nil) != nil {
		t.Error("expected nil to stay nil")
	}
	if !errors.Is(translate(gorm.ErrRecordNotFound), ErrNotFound) {
		t.Error("expected ErrRecordNotFound to become ErrNotFound")
	}
	if !errors.Is(translate(gorm.ErrDuplicatedKey), ErrDuplicate) {
		t.Error("expected ErrDuplicatedKey to become ErrDuplicate")
	}
	if !errors.Is(translate(gorm.ErrForeignKeyViolated), ErrNotFound) {
		t.Error("expected ErrForeignKeyViolated to become ErrNotFound")
	}
	other := errors.New("connection reset")
	if translate(other) != other {
		t.Error("expected unrelated errors to pass through")
	}
}

func TestGormRepo_UniqueViolationTranslated(t *testing.T) {
	gdb := openSQLite(t)
	if err := gdb.Create(&User{TelegramID: 7, FirstName: "Ann", Role: RolePatient}).Error; err != nil {
		t.Fatalf("first insert: %v", err)
	}
	// A plain insert without ON CONFLICT surfaces the driver's unique violation.
	err := gdb.Create(&User{TelegramID: 7, FirstName: "Ann", Role: RolePatient}).Error
	if !errors.Is(translate(err), ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestGormRepo_TransactionFromContext(t *testing.T) {
	gdb := openSQLite(t)
	svc := NewGormService(gdb)
	ctx := context.Background()

	errRollback := errors.New("rollback")
	err := gdb.Transaction(func(tx *gorm.DB) error {
		txCtx := db.WithGorm(ctx, tx)
		if err := svc.AddDoctor(txCtx, &Doctor{Name: "Dr. Temp", Specialty: "Oncology"}); err != nil {
			return err
		}
		if _, err := svc.FindDoctorByName(txCtx, "Dr. Temp"); err != nil {
			t.Errorf("expected the doctor to be visible inside the transaction: %v", err)
		}
		return errRollback
	})
	if !errors.Is(err, errRollback) {
		t.Fatalf("expected rollback error, got %v", err)
	}
	if _, err := svc.FindDoctorByName(ctx, "Dr. Temp"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected the insert to be rolled back, got %v", err)
	}
}

func TestPurgeGorm(t *testing.T) {
	gdb := openSQLite(t)
	svc := NewGormService(gdb)
	ctx := context.Background()

	u, _, err := svc.RegisterUser(ctx, 1, "Alice")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	d := addDoctor(t, svc, "Dr. Smith", "Cardiology")
	if _, err := svc.BookAppointment(ctx, u.ID, d.ID, time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("BookAppointment: %v", err)
	}
	if err := svc.SubmitReview(ctx, &Review{UserID: u.ID, DoctorID: d.ID, Rating: 4}); err != nil {
		t.Fatalf("SubmitReview: %v", err)
	}

	if err := PurgeGorm(ctx, gdb); err != nil {
		t.Fatalf("PurgeGorm: %v", err)
	}
	for _, m := range allModels {
		var n int64
		if err := gdb.Model(m).Count(&n).Error; err != nil {
			t.Fatalf("count: %v", err)
		}
		if n != 0 {
			t.Errorf("expected %T table to be empty, got %d rows", m, n)
		}
	}
}

// ===========================================================================
// Models against the SQL migrations
// ===========================================================================

var (
	createTableRe = regexp.MustCompile(`(?s)CREATE TABLE IF NOT EXISTS (\w+) \((.*?)\n\);`)
	alterTypeRe   = regexp.MustCompile(`ALTER TABLE (\w+) ALTER COLUMN (\w+) TYPE (\w+)`)
)

// migratedSchema replays the embedded migrations and returns, per table, the
// final declared type of every column.
func migratedSchema(t *testing.T) map[string]map[string]string {
	t.Helper()
	names, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	sort.Strings(names)

	tables := make(map[string]map[string]string)
	for _, name := range names {
		raw, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		sql := string(raw)
		for _, m := range createTableRe.FindAllStringSubmatch(sql, -1) {
			cols := make(map[string]string)
			for _, line := range strings.Split(m[2], "\n") {
				fields := strings.Fields(strings.TrimSpace(line))
				if len(fields) < 2 || fields[0] == "CHECK" {
					continue
				}
				cols[fields[0]] = strings.TrimSuffix(fields[1], ",")
			}
			tables[m[1]] = cols
		}
		for _, m := range alterTypeRe.FindAllStringSubmatch(sql, -1) {
			if tables[m[1]] == nil {
				t.Fatalf("%s alters unknown table %s", name, m[1])
			}
			tables[m[1]][m[2]] = m[3]
		}
	}
	return tables
}

func TestModelsMatchMigrations(t *testing.T) {
	tables := migratedSchema(t)
	for _, model := range allModels {
		sch, err := schema.Parse(model, &sync.Map{}, schema.NamingStrategy{})
		if err != nil {
			t.Fatalf("parse %T: %v", model, err)
		}
		cols, ok := tables[sch.Table]
		if !ok {
			t.Errorf("no migration creates table %s", sch.Table)
			continue
		}
		for _, col := range sch.DBNames {
			if _, ok := cols[col]; !ok {
				t.Errorf("%s.%s is mapped by %T but missing from the migrations", sch.Table, col, model)
			}
		}
	}
}

func TestMigrations_FirstNameUnbounded(t *testing.T) {
	got := migratedSchema(t)["users"]["first_name"]
	if got != "TEXT" {
		t.Errorf("expected users.first_name to end up as TEXT, got %s", got)
	}
}
