package models

// Hospital is a registered hospital. Its admin is the user who signed it up.
type Hospital struct {
	BaseModel
	Name        string `gorm:"size:255;not null" json:"name"`
	Address     string `gorm:"size:255;not null" json:"address"`
	PhoneNumber string `gorm:"size:20" json:"phoneNumber,omitempty"`
	AdminID     string `gorm:"size:36;index;not null" json:"adminId"`

	Admin User `gorm:"foreignKey:AdminID" json:"-"`
}

// Department belongs to one hospital; names are unique within it.
type Department struct {
	BaseModel
	HospitalID  string `gorm:"size:36;not null;uniqueIndex:idx_department_name" json:"hospitalId"`
	Name        string `gorm:"size:100;not null;uniqueIndex:idx_department_name" json:"name"`
	Description string `gorm:"type:text" json:"description,omitempty"`

	Hospital Hospital `gorm:"foreignKey:HospitalID" json:"-"`
}

// Doctor is the staff profile of a user with RoleDoctor.
// IsAvailable is owned by the appointment ledger and must only change through it.
type Doctor struct {
	BaseModel
	UserID            string  `gorm:"size:36;uniqueIndex;not null" json:"userId"`
	HospitalID        *string `gorm:"size:36;index" json:"hospitalId,omitempty"`
	DepartmentID      *string `gorm:"size:36;index" json:"departmentId,omitempty"`
	Specialization    string  `gorm:"size:100" json:"specialization,omitempty"`
	YearsOfExperience int     `json:"yearsOfExperience"`
	IsAvailable       bool    `gorm:"not null;default:true" json:"isAvailable"`

	User User `gorm:"foreignKey:UserID" json:"user"`
}

// Patient is the profile of a user with RolePatient.
// HasOpenAppointment is set while the patient holds a pending or in-progress appointment.
type Patient struct {
	BaseModel
	UserID             string `gorm:"size:36;uniqueIndex;not null" json:"userId"`
	HospitalCardID     string `gorm:"size:20" json:"hospitalCardId,omitempty"`
	HasOpenAppointment bool   `gorm:"not null;default:false" json:"hasOpenAppointment"`

	User User `gorm:"foreignKey:UserID" json:"user"`
}
