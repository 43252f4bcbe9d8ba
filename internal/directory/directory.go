// Package directory is the store of hospitals, departments, doctors and patients that the
// appointment ledger consults. Apart from the doctor availability flag and the patient
// open-appointment flag, which the ledger owns, these records are read-mostly.
package directory

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"queuemedix-server/internal/apperrors"
	"queuemedix-server/internal/models"
)

// Page is an offset/limit window over an ordered listing.
type Page struct {
	Offset int
	Limit  int
}

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// Apply adds OFFSET and LIMIT to q.
func (p Page) Apply(q *gorm.DB) *gorm.DB {
	p = p.Normalize()
	return q.Offset(p.Offset).Limit(p.Limit)
}

// Directory answers lookups against the authoritative store.
type Directory struct {
	db *gorm.DB
}

// New creates a Directory over db.
func New(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// WithTx returns a Directory bound to an open transaction.
func (d *Directory) WithTx(tx *gorm.DB) *Directory {
	return &Directory{db: tx}
}

func (d *Directory) first(ctx context.Context, entity, id string, dest interface{}, preload ...string) error {
	q := d.db.WithContext(ctx)
	for _, p := range preload {
		q = q.Preload(p)
	}
	if err := q.First(dest, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound(entity, id)
		}
		return apperrors.Internal("load "+entity, err)
	}
	return nil
}

// GetHospital returns the hospital with id or a NotFound error.
func (d *Directory) GetHospital(ctx context.Context, id string) (*models.Hospital, error) {
	var hospital models.Hospital
	if err := d.first(ctx, "hospital", id, &hospital); err != nil {
		return nil, err
	}
	return &hospital, nil
}

// GetDoctor returns the doctor with id, user preloaded, or a NotFound error.
func (d *Directory) GetDoctor(ctx context.Context, id string) (*models.Doctor, error) {
	var doctor models.Doctor
	if err := d.first(ctx, "doctor", id, &doctor, "User"); err != nil {
		return nil, err
	}
	return &doctor, nil
}

// GetPatient returns the patient with id, user preloaded, or a NotFound error.
func (d *Directory) GetPatient(ctx context.Context, id string) (*models.Patient, error) {
	var patient models.Patient
	if err := d.first(ctx, "patient", id, &patient, "User"); err != nil {
		return nil, err
	}
	return &patient, nil
}

// GetPatientByUser resolves the patient profile of a user.
func (d *Directory) GetPatientByUser(ctx context.Context, userID string) (*models.Patient, error) {
	var patient models.Patient
	err := d.db.WithContext(ctx).Preload("User").Where("user_id = ?", userID).First(&patient).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.KindNotFound, "no patient profile for user %s", userID)
	}
	if err != nil {
		return nil, apperrors.Internal("load patient", err)
	}
	return &patient, nil
}

// GetPatientByCard resolves a patient from the hospital card number printed for them.
func (d *Directory) GetPatientByCard(ctx context.Context, cardID string) (*models.Patient, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return nil, apperrors.New(apperrors.KindValidation, "hospital card id is required")
	}
	var patient models.Patient
	err := d.db.WithContext(ctx).Preload("User").Where("hospital_card_id = ?", cardID).First(&patient).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.KindNotFound, "no patient with hospital card %s", cardID)
	}
	if err != nil {
		return nil, apperrors.Internal("load patient", err)
	}
	return &patient, nil
}

// GetDoctorByUser resolves the doctor profile of a user.
func (d *Directory) GetDoctorByUser(ctx context.Context, userID string) (*models.Doctor, error) {
	var doctor models.Doctor
	err := d.db.WithContext(ctx).Preload("User").Where("user_id = ?", userID).First(&doctor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.KindNotFound, "no doctor profile for user %s", userID)
	}
	if err != nil {
		return nil, apperrors.Internal("load doctor", err)
	}
	return &doctor, nil
}

// CreateHospital registers a hospital administered by adminID.
func (d *Directory) CreateHospital(ctx context.Context, hospital *models.Hospital) error {
	if err := d.db.WithContext(ctx).Omit("Admin").Create(hospital).Error; err != nil {
		return apperrors.Internal("create hospital", err)
	}
	return nil
}

// ListHospitals returns hospitals ordered by name.
func (d *Directory) ListHospitals(ctx context.Context, search string, page Page) ([]models.Hospital, error) {
	q := d.db.WithContext(ctx).Model(&models.Hospital{}).Order("name asc")
	if search != "" {
		q = q.Where("LOWER(name) LIKE ?", like(search))
	}
	var hospitals []models.Hospital
	if err := page.Apply(q).Find(&hospitals).Error; err != nil {
		return nil, apperrors.Internal("list hospitals", err)
	}
	return hospitals, nil
}

// DoctorFilter narrows ListDoctors.
type DoctorFilter struct {
	Name           string
	Specialization string
	HospitalID     string
	AvailableOnly  bool
}

// ListDoctors searches doctors by name, specialization, hospital and availability.
func (d *Directory) ListDoctors(ctx context.Context, filter DoctorFilter, page Page) ([]models.Doctor, error) {
	q := d.db.WithContext(ctx).Model(&models.Doctor{}).
		Preload("User").
		Joins("JOIN users ON users.id = doctors.user_id").
		Order("users.last_name asc, users.first_name asc")

	if filter.Name != "" {
		pattern := like(filter.Name)
		q = q.Where("LOWER(users.first_name) LIKE ? OR LOWER(users.last_name) LIKE ?", pattern, pattern)
	}
	if filter.Specialization != "" {
		q = q.Where("LOWER(doctors.specialization) LIKE ?", like(filter.Specialization))
	}
	if filter.HospitalID != "" {
		q = q.Where("doctors.hospital_id = ?", filter.HospitalID)
	}
	if filter.AvailableOnly {
		q = q.Where("doctors.is_available = ?", true)
	}

	var doctors []models.Doctor
	if err := page.Apply(q).Find(&doctors).Error; err != nil {
		return nil, apperrors.Internal("list doctors", err)
	}
	return doctors, nil
}

// CreateDepartment adds a department to an existing hospital.
func (d *Directory) CreateDepartment(ctx context.Context, department *models.Department) error {
	if _, err := d.GetHospital(ctx, department.HospitalID); err != nil {
		return err
	}
	err := d.db.WithContext(ctx).Omit("Hospital").Create(department).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.New(apperrors.KindConflict, "department %q already exists", department.Name)
	}
	if err != nil {
		return apperrors.Internal("create department", err)
	}
	return nil
}

// GetDepartment returns the department with id or a NotFound error.
func (d *Directory) GetDepartment(ctx context.Context, id string) (*models.Department, error) {
	var department models.Department
	if err := d.first(ctx, "department", id, &department); err != nil {
		return nil, err
	}
	return &department, nil
}

// ListDepartments lists a hospital's departments, optionally filtered by name.
func (d *Directory) ListDepartments(ctx context.Context, hospitalID, search string, page Page) ([]models.Department, error) {
	q := d.db.WithContext(ctx).Model(&models.Department{}).
		Where("hospital_id = ?", hospitalID).
		Order("name asc")
	if search != "" {
		q = q.Where("LOWER(name) LIKE ?", like(search))
	}
	var departments []models.Department
	if err := page.Apply(q).Find(&departments).Error; err != nil {
		return nil, apperrors.Internal("list departments", err)
	}
	return departments, nil
}

// UpdateDepartment renames or re-describes a department.
func (d *Directory) UpdateDepartment(ctx context.Context, id, name, description string) (*models.Department, error) {
	department, err := d.GetDepartment(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != "" {
		department.Name = name
	}
	if description != "" {
		department.Description = description
	}
	err = d.db.WithContext(ctx).Omit("Hospital").Save(department).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, apperrors.New(apperrors.KindConflict, "department %q already exists", department.Name)
	}
	if err != nil {
		return nil, apperrors.Internal("update department", err)
	}
	return department, nil
}

// DeleteDepartment removes a department.
func (d *Directory) DeleteDepartment(ctx context.Context, id string) error {
	res := d.db.WithContext(ctx).Delete(&models.Department{}, "id = ?", id)
	if res.Error != nil {
		return apperrors.Internal("delete department", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("department", id)
	}
	return nil
}

func like(s string) string {
	return "%" + strings.ToLower(strings.TrimSpace(s)) + "%"
}
