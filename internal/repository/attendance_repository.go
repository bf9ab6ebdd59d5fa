package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// AttendanceRepository provides persistence APIs for attendance marks.
type AttendanceRepository struct {
	db *gorm.DB
}

// NewAttendanceRepository creates a new repository instance.
func NewAttendanceRepository(db *gorm.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// MarkAttendance records a PRESENT mark for the student at ts unless a
// record already exists for the same calendar day. It reports
// alreadyMarked when the mark was a duplicate.
func (r *AttendanceRepository) MarkAttendance(ctx context.Context, studentID int64, ts time.Time) (bool, error) {
	dayStart := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var existing AttendanceRecord
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND timestamp >= ? AND timestamp < ?", studentID, dayStart, dayEnd).
		First(&existing).Error
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("check existing attendance: %w", err)
	}

	record := AttendanceRecord{
		StudentID: studentID,
		Timestamp: ts,
		Status:    StatusPresent,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return false, fmt.Errorf("create attendance record: %w", err)
	}
	return false, nil
}

// TodaysRecords returns all marks recorded on the calendar day of now.
func (r *AttendanceRepository) TodaysRecords(ctx context.Context, now time.Time) ([]AttendanceRecord, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return r.RecordsBetween(ctx, dayStart, dayStart.AddDate(0, 0, 1))
}

// RecordsBetween returns marks with from <= timestamp < to.
func (r *AttendanceRepository) RecordsBetween(ctx context.Context, from, to time.Time) ([]AttendanceRecord, error) {
	var records []AttendanceRecord
	if err := r.db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp < ?", from, to).
		Order("timestamp").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load attendance records: %w", err)
	}
	return records, nil
}
