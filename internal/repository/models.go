package repository

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Student represents one enrolled identity with its gallery embedding.
type Student struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"column:name;size:128"`
	Code      string    `gorm:"column:code;uniqueIndex;size:32"`
	Email     string    `gorm:"column:email;size:128"`
	Embedding []byte    `gorm:"column:embedding;type:bytea"`
	IsActive  bool      `gorm:"column:is_active;default:true"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (Student) TableName() string {
	return "students"
}

// AttendanceRecord represents one persisted attendance mark.
type AttendanceRecord struct {
	ID        int64     `gorm:"primaryKey"`
	StudentID int64     `gorm:"column:student_id;index:idx_attendance_student_day"`
	Timestamp time.Time `gorm:"column:timestamp;index:idx_attendance_student_day"`
	Status    string    `gorm:"column:status;size:16"`
}

// TableName overrides the default table name.
func (AttendanceRecord) TableName() string {
	return "attendance_records"
}

// Attendance status values.
const (
	StatusPresent = "PRESENT"
	StatusAbsent  = "ABSENT"
	StatusLate    = "LATE"
)

// EncodeEmbedding packs a float32 vector into the little-endian byte
// layout stored in the embedding column.
func EncodeEmbedding(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// DecodeEmbedding unpacks a stored embedding and checks its dimension.
func DecodeEmbedding(data []byte, dim int) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(data))
	}
	n := len(data) / 4
	if dim > 0 && n != dim {
		return nil, fmt.Errorf("embedding has %d components, expected %d", n, dim)
	}
	vec := make([]float32, n)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return vec, nil
}
