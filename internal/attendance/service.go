package attendance

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"attendance/internal/metrics"
	"attendance/internal/queue"
)

// Change event types published after a successful write.
const (
	EventStudentAdded       = "student.added"
	EventAttendanceRecorded = "attendance.recorded"
)

// StatusPolicy decides which status values RecordAttendance accepts.
type StatusPolicy string

const (
	// StatusLenient stores any status verbatim.
	StatusLenient StatusPolicy = "lenient"
	// StatusStrict accepts only present and absent.
	StatusStrict StatusPolicy = "strict"
)

// ParseStatusPolicy maps a config value to a policy.
func ParseStatusPolicy(s string) (StatusPolicy, error) {
	switch StatusPolicy(s) {
	case StatusLenient, "":
		return StatusLenient, nil
	case StatusStrict:
		return StatusStrict, nil
	default:
		return "", fmt.Errorf("unknown status policy %q", s)
	}
}

// Store persists the whole dataset as one snapshot.
type Store interface {
	Load(ctx context.Context) (Dataset, error)
	Save(ctx context.Context, data Dataset) error
}

// Locker serializes writers across processes sharing one store.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// Event is the body of a change event.
type Event struct {
	ID         string            `json:"event_id"`
	OccurredAt string            `json:"occurred_at"`
	Student    *Student          `json:"student,omitempty"`
	Record     *AttendanceRecord `json:"record,omitempty"`
}

// Options configures a Service. Zero values give the lenient, single-process behaviour.
type Options struct {
	StatusPolicy    StatusPolicy
	CheckStudentRef bool
	Locker          Locker
	Publisher       queue.Publisher
	PublishTimeout  time.Duration
	Now             func() time.Time
}

// Service implements student, attendance and statistics operations on top of a Store.
type Service struct {
	store    Store
	opts     Options
	validate *validator.Validate

	// mu guards every load-mutate-save sequence.
	mu sync.Mutex
}

// NewService creates a service backed by a store.
func NewService(store Store, opts Options) *Service {
	if opts.StatusPolicy == "" {
		opts.StatusPolicy = StatusLenient
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 2 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{store: store, opts: opts, validate: validator.New()}
}

// AddStudent registers a student and persists the dataset.
func (s *Service) AddStudent(ctx context.Context, in StudentInput) (Student, error) {
	if err := in.Validate(); err != nil {
		return Student{}, err
	}

	var st Student
	err := s.write(ctx, func(data *Dataset) error {
		st = Student{
			ID:         data.nextStudentID(),
			Name:       in.Name.Canonical(),
			RollNumber: in.RollNumber.Canonical(),
			Class:      in.Class.Canonical(),
			AddedDate:  s.timestamp(),
		}
		data.Students = append(data.Students, st)
		return nil
	})
	if err != nil {
		return Student{}, err
	}

	metrics.StudentsAdded.Inc()
	s.publish(ctx, EventStudentAdded, Event{Student: &st})
	return st, nil
}

// ListStudents returns every student in insertion order.
func (s *Service) ListStudents(ctx context.Context) ([]Student, error) {
	data, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return data.Students, nil
}

// RecordAttendance stores an attendance record and persists the dataset.
// Duplicate records for the same student and date are allowed.
func (s *Service) RecordAttendance(ctx context.Context, in RecordInput) (AttendanceRecord, error) {
	if err := in.Validate(); err != nil {
		return AttendanceRecord{}, err
	}
	if err := s.checkStatus(in.Status); err != nil {
		return AttendanceRecord{}, err
	}

	var rec AttendanceRecord
	err := s.write(ctx, func(data *Dataset) error {
		if s.opts.CheckStudentRef {
			if !in.StudentID.Valid {
				return fmt.Errorf("%w: student_id is required", ErrInvalidInput)
			}
			if !data.HasStudent(in.StudentID.ID) {
				return fmt.Errorf("%w: %d", ErrUnknownStudent, in.StudentID.ID)
			}
		}
		rec = AttendanceRecord{
			ID:         data.nextRecordID(),
			StudentID:  in.StudentID.Canonical(),
			Date:       in.Date.Canonical(),
			Status:     in.Status.Canonical(),
			RecordedAt: s.timestamp(),
		}
		data.Attendance = append(data.Attendance, rec)
		return nil
	})
	if err != nil {
		return AttendanceRecord{}, err
	}

	metrics.RecordsRecorded.WithLabelValues(statusBucket(rec.Status)).Inc()
	s.publish(ctx, EventAttendanceRecorded, Event{Record: &rec})
	return rec, nil
}

// ListAttendance returns every attendance record in insertion order.
func (s *Service) ListAttendance(ctx context.Context) ([]AttendanceRecord, error) {
	data, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return data.Attendance, nil
}

// Statistics returns the aggregate counts of the current dataset.
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	data, err := s.load(ctx)
	if err != nil {
		return Statistics{}, err
	}
	return data.Statistics(), nil
}

func (s *Service) checkStatus(status Text) error {
	if s.opts.StatusPolicy != StatusStrict {
		return nil
	}
	if err := s.validate.Var(status.String, "required,oneof=present absent"); err != nil || !status.Valid {
		return fmt.Errorf("%w: status must be one of present, absent", ErrInvalidInput)
	}
	return nil
}

func (s *Service) load(ctx context.Context) (Dataset, error) {
	data, err := s.store.Load(ctx)
	if err != nil {
		return Dataset{}, fmt.Errorf("load snapshot: %w", err)
	}
	data.Normalize()
	return data, nil
}

// write runs one load-mutate-save transaction under the write lock.
func (s *Service) write(ctx context.Context, mutate func(*Dataset) error) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opts.Locker != nil {
		unlock, err := s.opts.Locker.Lock(ctx)
		if err != nil {
			return fmt.Errorf("acquire write lock: %w", err)
		}
		defer unlock()
	}
	metrics.WriteLockWait.Observe(time.Since(start).Seconds())

	data, err := s.load(ctx)
	if err != nil {
		return err
	}
	if err := mutate(&data); err != nil {
		return err
	}
	if err := s.store.Save(ctx, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// publish hands a change event to the queue. Failures never fail the request.
func (s *Service) publish(ctx context.Context, typ string, evt Event) {
	if s.opts.Publisher == nil {
		return
	}
	evt.ID = uuid.NewString()
	evt.OccurredAt = s.timestamp()
	body, err := json.Marshal(evt)
	if err != nil {
		log.Printf("encode %s event failed: %v", typ, err)
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.PublishTimeout)
	defer cancel()
	if err := s.opts.Publisher.Publish(pubCtx, queue.Message{Type: typ, Body: body}); err != nil {
		metrics.EventsPublished.WithLabelValues(typ, "error").Inc()
		log.Printf("queue publish %s failed: %v", typ, err)
		return
	}
	metrics.EventsPublished.WithLabelValues(typ, "ok").Inc()
}

func (s *Service) timestamp() string {
	return s.opts.Now().Format(TimestampLayout)
}
