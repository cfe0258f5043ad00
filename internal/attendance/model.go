package attendance

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// TimestampLayout is the format of added_date and recorded_at, in server local time.
const TimestampLayout = "2006-01-02 15:04:05"

// Attendance statuses counted by Statistics.
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
)

var jsonNull = []byte("null")

// Text is an optional text field. It encodes as null when unset. Decoding
// never fails: strings, numbers and booleans set the text, and any value
// that is not a JSON string is kept verbatim so it encodes back unchanged.
type Text struct {
	String string
	Valid  bool
	raw    string
}

// NewText returns a set Text.
func NewText(s string) Text {
	return Text{String: s, Valid: true}
}

// Is reports whether the field is set and equals s exactly.
func (t Text) Is(s string) bool {
	return t.Valid && t.String == s
}

// Canonical drops the preserved original encoding.
func (t Text) Canonical() Text {
	t.raw = ""
	return t
}

// Check rejects values that are neither text, numbers, booleans nor null.
func (t Text) Check(field string) error {
	if !t.Valid && t.raw != "" {
		return fmt.Errorf("%w: %s must be text, got %s", ErrInvalidInput, field, truncate(t.raw))
	}
	return nil
}

func (t Text) MarshalJSON() ([]byte, error) {
	if t.raw != "" {
		return []byte(t.raw), nil
	}
	if !t.Valid {
		return jsonNull, nil
	}
	return json.Marshal(t.String)
}

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*t = Text{}
	if bytes.Equal(data, jsonNull) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = NewText(s)
		return nil
	}
	t.raw = string(data)
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		t.String, t.Valid = n.String(), true
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		t.String, t.Valid = strconv.FormatBool(b), true
	}
	return nil
}

// StudentRef is an optional student id. JSON integers and numeric strings
// set the id. Like Text, anything other than a plain integer is kept
// verbatim and encodes back unchanged.
type StudentRef struct {
	ID    int
	Valid bool
	raw   string
}

// NewStudentRef returns a set StudentRef.
func NewStudentRef(id int) StudentRef {
	return StudentRef{ID: id, Valid: true}
}

// Canonical drops the preserved original encoding.
func (r StudentRef) Canonical() StudentRef {
	r.raw = ""
	return r
}

// Check rejects values that do not name an integer id.
func (r StudentRef) Check() error {
	if !r.Valid && r.raw != "" {
		return fmt.Errorf("%w: student_id must be an integer, got %s", ErrInvalidInput, truncate(r.raw))
	}
	return nil
}

func (r StudentRef) MarshalJSON() ([]byte, error) {
	if r.raw != "" {
		return []byte(r.raw), nil
	}
	if !r.Valid {
		return jsonNull, nil
	}
	return []byte(strconv.Itoa(r.ID)), nil
}

func (r *StudentRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*r = StudentRef{}
	if bytes.Equal(data, jsonNull) {
		return nil
	}
	if id, err := strconv.Atoi(string(data)); err == nil {
		*r = NewStudentRef(id)
		return nil
	}
	r.raw = string(data)
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if id, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			r.ID, r.Valid = id, true
		}
	}
	return nil
}

func truncate(s string) string {
	const limit = 32
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

// Student is a registered student.
type Student struct {
	ID         int    `json:"id"`
	Name       Text   `json:"name"`
	RollNumber Text   `json:"roll_number"`
	Class      Text   `json:"class"`
	AddedDate  string `json:"added_date"`
}

// AttendanceRecord is one attendance entry for a student on a date.
type AttendanceRecord struct {
	ID         int        `json:"id"`
	StudentID  StudentRef `json:"student_id"`
	Date       Text       `json:"date"`
	Status     Text       `json:"status"`
	RecordedAt string     `json:"recorded_at"`
}

// StudentInput is the request body for adding a student. Every field is optional.
type StudentInput struct {
	Name       Text `json:"name"`
	RollNumber Text `json:"roll_number"`
	Class      Text `json:"class"`
}

// Validate rejects fields that hold objects or arrays.
func (in StudentInput) Validate() error {
	return errors.Join(in.Name.Check("name"), in.RollNumber.Check("roll_number"), in.Class.Check("class"))
}

// RecordInput is the request body for recording attendance. Every field is optional.
type RecordInput struct {
	StudentID StudentRef `json:"student_id"`
	Date      Text       `json:"date"`
	Status    Text       `json:"status"`
}

// Validate rejects a non-integer student_id and text fields that hold objects or arrays.
func (in RecordInput) Validate() error {
	return errors.Join(in.StudentID.Check(), in.Date.Check("date"), in.Status.Check("status"))
}

// Statistics aggregates the dataset.
type Statistics struct {
	TotalStudents int `json:"total_students"`
	TotalRecords  int `json:"total_records"`
	PresentCount  int `json:"present_count"`
	AbsentCount   int `json:"absent_count"`
}

// Sequence holds the last id handed out per collection.
type Sequence struct {
	Students   int `json:"students"`
	Attendance int `json:"attendance"`
}

// Dataset is the whole persisted state, loaded and saved as one snapshot.
type Dataset struct {
	Students   []Student          `json:"students"`
	Attendance []AttendanceRecord `json:"attendance"`
	Sequence   Sequence           `json:"sequence"`
}

// EmptyDataset returns a dataset with empty, non-nil collections.
func EmptyDataset() Dataset {
	return Dataset{Students: []Student{}, Attendance: []AttendanceRecord{}}
}

// Normalize replaces nil collections with empty ones.
func (d *Dataset) Normalize() {
	if d.Students == nil {
		d.Students = []Student{}
	}
	if d.Attendance == nil {
		d.Attendance = []AttendanceRecord{}
	}
}

// Clone returns a deep copy of the dataset.
func (d Dataset) Clone() Dataset {
	return Dataset{
		Students:   append([]Student{}, d.Students...),
		Attendance: append([]AttendanceRecord{}, d.Attendance...),
		Sequence:   d.Sequence,
	}
}

// HasStudent reports whether a student with the given id exists.
func (d Dataset) HasStudent(id int) bool {
	for _, st := range d.Students {
		if st.ID == id {
			return true
		}
	}
	return false
}

func (d *Dataset) nextStudentID() int {
	last := max(d.Sequence.Students, len(d.Students))
	for _, st := range d.Students {
		last = max(last, st.ID)
	}
	d.Sequence.Students = last + 1
	return d.Sequence.Students
}

func (d *Dataset) nextRecordID() int {
	last := max(d.Sequence.Attendance, len(d.Attendance))
	for _, rec := range d.Attendance {
		last = max(last, rec.ID)
	}
	d.Sequence.Attendance = last + 1
	return d.Sequence.Attendance
}

// statusBucket is the metric label for a stored status: present, absent or other.
func statusBucket(status Text) string {
	if status.Is(StatusPresent) || status.Is(StatusAbsent) {
		return status.String
	}
	return "other"
}

// Statistics counts students, records and exact present/absent statuses.
func (d Dataset) Statistics() Statistics {
	stats := Statistics{
		TotalStudents: len(d.Students),
		TotalRecords:  len(d.Attendance),
	}
	for _, rec := range d.Attendance {
		switch {
		case rec.Status.Is(StatusPresent):
			stats.PresentCount++
		case rec.Status.Is(StatusAbsent):
			stats.AbsentCount++
		}
	}
	return stats
}
