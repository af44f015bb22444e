package appointment

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/rules"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

// MemoryRepository keeps appointments in process. It enforces the same
// one-live-appointment-per-slot rule as the database index and is used by
// tests and the simulate command.
type MemoryRepository struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]*Appointment
	patients     map[string]*Patient // clinic|phone
	blocks       []schedule.Block
	events       []EventLog
	doctorNames  map[uuid.UUID]string
	examNames    map[uuid.UUID]string

	bookCalls int
	// BookErr, when set, is returned by BookAppointment.
	BookErr error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		appointments: make(map[uuid.UUID]*Appointment),
		patients:     make(map[string]*Patient),
		doctorNames:  make(map[uuid.UUID]string),
		examNames:    make(map[uuid.UUID]string),
	}
}

// Name records display names used when building AppointmentDetail.
func (r *MemoryRepository) Name(id uuid.UUID, doctor, exam string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doctor != "" {
		r.doctorNames[id] = doctor
	}
	if exam != "" {
		r.examNames[id] = exam
	}
}

func patientKey(clinicID uuid.UUID, phone string) string {
	return clinicID.String() + "|" + phone
}

func (r *MemoryRepository) BookAppointment(_ context.Context, req BookingRequest) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bookCalls++
	if r.BookErr != nil {
		return nil, r.BookErr
	}

	for _, a := range r.appointments {
		if a.ClinicID == req.ClinicID && a.DoctorID == req.DoctorID &&
			a.Date.Equal(req.Date) && a.Time == req.Time && a.Status.Live() {
			return nil, ErrSlotTaken
		}
	}

	now := time.Now()
	key := patientKey(req.ClinicID, req.Patient.Phone)
	p, ok := r.patients[key]
	if !ok {
		p = &Patient{ID: uuid.New(), ClinicID: req.ClinicID, Phone: req.Patient.Phone, CreatedAt: now}
		r.patients[key] = p
	}
	p.Name = req.Patient.Name
	if req.Patient.Email != nil {
		p.Email = req.Patient.Email
	}
	if req.Patient.BirthDate != nil {
		p.BirthDate = req.Patient.BirthDate
	}
	if req.Patient.InsurancePlan != nil {
		p.InsurancePlan = req.Patient.InsurancePlan
	}
	p.UpdatedAt = now

	a := &Appointment{
		ID:        uuid.New(),
		ClinicID:  req.ClinicID,
		PatientID: p.ID,
		DoctorID:  req.DoctorID,
		ExamID:    req.ExamID,
		Date:      req.Date,
		Time:      req.Time,
		Status:    StatusScheduled,
		Notes:     req.Notes,
		CreatedBy: req.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.appointments[a.ID] = a

	cid, aid := req.ClinicID, a.ID
	r.events = append(r.events, EventLog{
		ID:            int64(len(r.events) + 1),
		ClinicID:      &cid,
		EventType:     EventAppointmentCreated,
		AppointmentID: &aid,
		Payload:       req.Payload,
		CreatedAt:     now,
	})

	cp := *a
	return &cp, nil
}

// BookCalls reports how many times BookAppointment was called.
func (r *MemoryRepository) BookCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bookCalls
}

func (r *MemoryRepository) FindLiveAppointment(_ context.Context, clinicID, doctorID uuid.UUID, date time.Time, clock string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appointments {
		if a.ClinicID == clinicID && a.DoctorID == doctorID && a.Date.Equal(date) && a.Time == clock && a.Status.Live() {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.ClinicID != clinicID {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) GetAppointmentDetail(_ context.Context, clinicID, id uuid.UUID) (*AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.ClinicID != clinicID {
		return nil, ErrAppointmentNotFound
	}
	d := r.detail(a)
	return &d, nil
}

func (r *MemoryRepository) detail(a *Appointment) AppointmentDetail {
	d := AppointmentDetail{
		Appointment: *a,
		DoctorName:  r.doctorNames[a.DoctorID],
		ExamName:    r.examNames[a.ExamID],
	}
	for _, p := range r.patients {
		if p.ID == a.PatientID {
			d.PatientName = p.Name
			d.PatientPhone = p.Phone
			d.PatientEmail = p.Email
			break
		}
	}
	return d
}

func (r *MemoryRepository) ListAppointments(_ context.Context, f ListFilter) ([]AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []AppointmentDetail
	for _, a := range r.appointments {
		if a.ClinicID != f.ClinicID {
			continue
		}
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.Date != nil && !a.Date.Equal(*f.Date) {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		out = append(out, r.detail(a))
	}

	slices.SortFunc(out, func(x, y AppointmentDetail) int {
		if c := x.Date.Compare(y.Date); c != 0 {
			return c
		}
		if x.Time < y.Time {
			return -1
		}
		if x.Time > y.Time {
			return 1
		}
		return 0
	})

	if f.Offset >= len(out) {
		return []AppointmentDetail{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(_ context.Context, clinicID, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.ClinicID != clinicID || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) CreateBlock(_ context.Context, block schedule.Block) ([]AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.blocks = append(r.blocks, block)

	var canceled []AppointmentDetail
	for _, a := range r.appointments {
		if a.ClinicID != block.ClinicID || a.DoctorID != block.DoctorID || a.Status != StatusScheduled {
			continue
		}
		if !block.Covers(a.Date) {
			continue
		}
		a.Status = StatusCanceledDueToBlock
		a.UpdatedAt = time.Now()
		canceled = append(canceled, r.detail(a))
	}
	return canceled, nil
}

// Blocks returns the blocks stored by CreateBlock.
func (r *MemoryRepository) Blocks() []schedule.Block {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.blocks)
}

func (r *MemoryRepository) PatientHistory(_ context.Context, clinicID uuid.UUID, phone string) ([]rules.PastExam, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.patients[patientKey(clinicID, phone)]
	if !ok {
		return nil, nil
	}
	var out []rules.PastExam
	for _, a := range r.appointments {
		if a.PatientID != p.ID {
			continue
		}
		out = append(out, rules.PastExam{
			AppointmentID: a.ID,
			ExamName:      r.examNames[a.ExamID],
			Date:          a.Date,
			Canceled:      !a.Status.Live(),
		})
	}
	return out, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

// Events returns the recorded event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}
