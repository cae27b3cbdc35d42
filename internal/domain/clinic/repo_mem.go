package clinic

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory implementation of every clinic repository. It backs
// STORE_DRIVER=memory and the package tests.
type MemStore struct {
	mu           sync.RWMutex
	nextID       uint
	users        map[uint]*User
	doctors      map[uint]*Doctor
	schedules    map[uint]*DoctorSchedule
	appointments map[uint]*Appointment
	reviews      map[uint]*Review
}

func NewMemStore() *MemStore {
	return &MemStore{
		users:        make(map[uint]*User),
		doctors:      make(map[uint]*Doctor),
		schedules:    make(map[uint]*DoctorSchedule),
		appointments: make(map[uint]*Appointment),
		reviews:      make(map[uint]*Review),
	}
}

// Service returns a Service wired to this store.
func (m *MemStore) Service() *Service {
	return NewService(memUsers{m}, memDoctors{m}, memSchedules{m}, memAppointments{m}, memReviews{m})
}

// Reset drops every record.
func (m *MemStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = make(map[uint]*User)
	m.doctors = make(map[uint]*Doctor)
	m.schedules = make(map[uint]*DoctorSchedule)
	m.appointments = make(map[uint]*Appointment)
	m.reviews = make(map[uint]*Review)
}

// Counts reports the number of rows per table.
func (m *MemStore) Counts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int{
		"users":            len(m.users),
		"doctors":          len(m.doctors),
		"doctor_schedules": len(m.schedules),
		"appointments":     len(m.appointments),
		"reviews":          len(m.reviews),
	}
}

// Appointments returns a snapshot of all appointments ordered by id.
func (m *MemStore) Appointments() []Appointment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Appointment, 0, len(m.appointments))
	for _, a := range m.appointments {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reviews returns a snapshot of all reviews ordered by id.
func (m *MemStore) Reviews() []Review {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Review, 0, len(m.reviews))
	for _, r := range m.reviews {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetAppointmentStatus changes an appointment's status the way an operator
// editing the database would.
func (m *MemStore) SetAppointmentStatus(id uint, status AppointmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	return nil
}

// SetUserRole changes a user's role the way an operator editing the database would.
func (m *MemStore) SetUserRole(telegramID int64, role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.TelegramID == telegramID {
			u.Role = role
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemStore) id() uint {
	m.nextID++
	return m.nextID
}

// =========== Users ===========

type memUsers struct{ m *MemStore }

func (r memUsers) Create(_ context.Context, u *User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.users {
		if existing.TelegramID == u.TelegramID {
			return ErrDuplicate
		}
	}
	if u.Role == "" {
		u.Role = RolePatient
	}
	u.ID = r.m.id()
	u.CreatedAt = time.Now()
	stored := *u
	r.m.users[u.ID] = &stored
	return nil
}

func (r memUsers) GetByTelegramID(_ context.Context, telegramID int64) (*User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, u := range r.m.users {
		if u.TelegramID == telegramID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// =========== Doctors ===========

type memDoctors struct{ m *MemStore }

func (r memDoctors) Create(_ context.Context, d *Doctor) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d.ID = r.m.id()
	d.CreatedAt = time.Now()
	stored := *d
	r.m.doctors[d.ID] = &stored
	return nil
}

func (r memDoctors) GetByID(_ context.Context, id uint) (*Doctor, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	d, ok := r.m.doctors[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r memDoctors) GetByName(_ context.Context, name string) (*Doctor, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var found *Doctor
	for _, d := range r.m.doctors {
		if d.Name == name && (found == nil || d.ID < found.ID) {
			found = d
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	cp := *found
	return &cp, nil
}

func (r memDoctors) ListSpecialties(_ context.Context) ([]string, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, d := range r.m.doctors {
		if !seen[d.Specialty] {
			seen[d.Specialty] = true
			out = append(out, d.Specialty)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r memDoctors) ListBySpecialty(_ context.Context, specialty string) ([]*Doctor, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []*Doctor
	for _, d := range r.m.doctors {
		if d.Specialty == specialty {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =========== Schedules ===========

type memSchedules struct{ m *MemStore }

func (r memSchedules) Create(_ context.Context, s *DoctorSchedule) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.doctors[s.DoctorID]; !ok {
		return ErrNotFound
	}
	s.ID = r.m.id()
	stored := *s
	r.m.schedules[s.ID] = &stored
	return nil
}

func (r memSchedules) ListByDoctor(_ context.Context, doctorID uint) ([]*DoctorSchedule, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []*DoctorSchedule
	for _, s := range r.m.schedules {
		if s.DoctorID == doctorID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		if a, b := out[i].StartTime.String(), out[j].StartTime.String(); a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =========== Appointments ===========

type memAppointments struct{ m *MemStore }

func (r memAppointments) Create(_ context.Context, a *Appointment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.users[a.UserID]; !ok {
		return ErrNotFound
	}
	if _, ok := r.m.doctors[a.DoctorID]; !ok {
		return ErrNotFound
	}
	a.ID = r.m.id()
	a.CreatedAt = time.Now()
	stored := *a
	stored.Doctor = nil
	r.m.appointments[a.ID] = &stored
	return nil
}

func (r memAppointments) withDoctor(a *Appointment) *Appointment {
	cp := *a
	if d, ok := r.m.doctors[a.DoctorID]; ok {
		dcp := *d
		cp.Doctor = &dcp
	}
	return &cp
}

func (r memAppointments) GetByID(_ context.Context, id uint) (*Appointment, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	a, ok := r.m.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.withDoctor(a), nil
}

func (r memAppointments) ListByUser(_ context.Context, userID uint) ([]*Appointment, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []*Appointment
	for _, a := range r.m.appointments {
		if a.UserID == userID {
			out = append(out, r.withDoctor(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AppointmentTime.Equal(out[j].AppointmentTime) {
			return out[i].AppointmentTime.Before(out[j].AppointmentTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =========== Reviews ===========

type memReviews struct{ m *MemStore }

func (r memReviews) Create(_ context.Context, rv *Review) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	rv.ID = r.m.id()
	rv.CreatedAt = time.Now()
	stored := *rv
	r.m.reviews[rv.ID] = &stored
	return nil
}

func (r memReviews) ListByDoctor(_ context.Context, doctorID uint) ([]*Review, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []*Review
	for _, rv := range r.m.reviews {
		if rv.DoctorID == doctorID {
			cp := *rv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
