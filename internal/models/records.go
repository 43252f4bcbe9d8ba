package models

import (
	"time"
)

// MedicalRecord is a doctor's note on a patient.
type MedicalRecord struct {
	BaseModel
	PatientID   string    `gorm:"size:36;index;not null" json:"patientId"`
	DoctorID    *string   `gorm:"size:36;index" json:"doctorId,omitempty"`
	Description string    `gorm:"type:text;not null" json:"description"`
	RecordDate  time.Time `json:"recordDate"`

	Patient Patient `gorm:"foreignKey:PatientID" json:"-"`
	Doctor  *Doctor `gorm:"foreignKey:DoctorID" json:"-"`
}

// Message represents a chat message between users
type Message struct {
	BaseModel
	SenderID   string     `gorm:"size:36;index;not null" json:"senderId"`
	ReceiverID string     `gorm:"size:36;index;not null" json:"receiverId"`
	Content    string     `gorm:"type:text;not null" json:"content"`
	ReadAt     *time.Time `json:"readAt,omitempty"`

	Sender   User `gorm:"foreignKey:SenderID" json:"-"`
	Receiver User `gorm:"foreignKey:ReceiverID" json:"-"`
}
