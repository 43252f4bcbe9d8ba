package queue

import (
	"context"
	"time"

	"gorm.io/gorm"

	"queuemedix-server/internal/apperrors"
	"queuemedix-server/internal/models"
)

// MessageTypeQueueUpdate tags every snapshot pushed to live subscribers.
const MessageTypeQueueUpdate = "queue_update"

// Entry is one appointment as shown on a hospital's queue board.
type Entry struct {
	ID            string                   `json:"id"`
	Patient       string                   `json:"patient"`
	PatientID     string                   `json:"patient_id"`
	DoctorID      *string                  `json:"doctor_id,omitempty"`
	Time          string                   `json:"time"`
	Status        models.AppointmentStatus `json:"status"`
	TimeRemaining string                   `json:"time_remaining"`
}

// Snapshot is a point-in-time projection of one hospital's queue, sorted by scheduled time.
type Snapshot struct {
	Type       string  `json:"type"`
	HospitalID string  `json:"hospital_id"`
	Data       []Entry `json:"data"`
}

// Projector derives queue snapshots.
type Projector interface {
	Project(ctx context.Context, hospitalID string) (Snapshot, error)
}

// StoreProjector reads the ledger on every call; nothing is cached.
type StoreProjector struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStoreProjector creates a projector over db. A nil now uses time.Now.
func NewStoreProjector(db *gorm.DB, now func() time.Time) *StoreProjector {
	if now == nil {
		now = time.Now
	}
	return &StoreProjector{db: db, now: now}
}

// Project implements Projector.
func (p *StoreProjector) Project(ctx context.Context, hospitalID string) (Snapshot, error) {
	var appointments []models.Appointment
	err := p.db.WithContext(ctx).
		Preload("Patient.User").
		Where("hospital_id = ?", hospitalID).
		Order("scheduled_time asc").
		Order("id asc").
		Find(&appointments).Error
	if err != nil {
		return Snapshot{}, apperrors.Internal("project queue", err)
	}

	now := p.now()
	entries := make([]Entry, 0, len(appointments))
	for _, a := range appointments {
		entries = append(entries, Entry{
			ID:        a.ID,
			Patient:   a.Patient.User.FullName(),
			PatientID: a.PatientID,
			DoctorID:  a.DoctorID,
			Time:      a.ScheduledTime.UTC().Format(time.RFC3339),
			Status:    a.Status,
			// Past-due appointments yield a negative duration; clients decide how to show it.
			TimeRemaining: a.ScheduledTime.Sub(now).Round(time.Second).String(),
		})
	}

	return Snapshot{
		Type:       MessageTypeQueueUpdate,
		HospitalID: hospitalID,
		Data:       entries,
	}, nil
}
