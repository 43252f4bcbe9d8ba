package models

import (
	"time"
)

// AppointmentStatus represents the status of an appointment
type AppointmentStatus string

const (
	StatusPending    AppointmentStatus = "pending"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCanceled   AppointmentStatus = "canceled"
)

// Valid reports whether s is one of the known statuses.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether s is completed or canceled.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// Appointment is a patient's booking of a hospital slot.
// (HospitalID, ScheduledTime) is unique: one appointment per slot.
type Appointment struct {
	BaseModel
	PatientID     string            `gorm:"size:36;index;not null" json:"patientId"`
	HospitalID    string            `gorm:"size:36;not null;uniqueIndex:idx_hospital_slot" json:"hospitalId"`
	DoctorID      *string           `gorm:"size:36;index" json:"doctorId,omitempty"`
	Note          string            `gorm:"type:text" json:"note"`
	ScheduledTime time.Time         `gorm:"not null;uniqueIndex:idx_hospital_slot" json:"scheduledTime"`
	Status        AppointmentStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`

	Patient  Patient  `gorm:"foreignKey:PatientID" json:"-"`
	Hospital Hospital `gorm:"foreignKey:HospitalID" json:"-"`
	Doctor   *Doctor  `gorm:"foreignKey:DoctorID" json:"-"`
}
