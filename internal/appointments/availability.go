package appointments

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"queuemedix-server/internal/apperrors"
	"queuemedix-server/internal/models"
)

// Availability owns the doctor busy/free flag. Flips are compare-and-set updates so two
// writers racing for the same doctor cannot both win.
type Availability struct {
	db *gorm.DB
}

// NewAvailability creates an Availability coordinator over db.
func NewAvailability(db *gorm.DB) *Availability {
	return &Availability{db: db}
}

// WithTx returns a coordinator whose flips join an open transaction.
func (a *Availability) WithTx(tx *gorm.DB) *Availability {
	return &Availability{db: tx}
}

// IsAvailable reports the doctor's current flag.
func (a *Availability) IsAvailable(ctx context.Context, doctorID string) (bool, error) {
	var doctor models.Doctor
	err := a.db.WithContext(ctx).Select("id", "is_available").First(&doctor, "id = ?", doctorID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, apperrors.NotFound("doctor", doctorID)
	}
	if err != nil {
		return false, apperrors.Internal("load doctor availability", err)
	}
	return doctor.IsAvailable, nil
}

// MarkBusy flips the doctor from available to busy. It fails with DoctorUnavailable when
// the doctor is already busy.
func (a *Availability) MarkBusy(ctx context.Context, doctorID string) error {
	tx := a.db.WithContext(ctx)
	res := tx.Model(&models.Doctor{}).
		Where("id = ? AND is_available = ?", doctorID, true).
		Update("is_available", false)
	if res.Error != nil {
		return apperrors.Internal("mark doctor busy", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if err := doctorExists(tx, doctorID); err != nil {
		return err
	}
	return apperrors.New(apperrors.KindDoctorUnavailable, "doctor %s is not available", doctorID)
}

// MarkFree flips the doctor back to available.
func (a *Availability) MarkFree(ctx context.Context, doctorID string) error {
	tx := a.db.WithContext(ctx)
	res := tx.Model(&models.Doctor{}).
		Where("id = ?", doctorID).
		Update("is_available", true)
	if res.Error != nil {
		return apperrors.Internal("mark doctor free", res.Error)
	}
	if res.RowsAffected == 0 {
		// MySQL reports zero rows when the value is unchanged.
		return doctorExists(tx, doctorID)
	}
	return nil
}

func doctorExists(tx *gorm.DB, doctorID string) error {
	var count int64
	if err := tx.Model(&models.Doctor{}).Where("id = ?", doctorID).Count(&count).Error; err != nil {
		return apperrors.Internal("load doctor", err)
	}
	if count == 0 {
		return apperrors.NotFound("doctor", doctorID)
	}
	return nil
}

// claimPatient sets the patient's open-appointment flag, failing when it is already set.
func claimPatient(tx *gorm.DB, patientID string) error {
	res := tx.Model(&models.Patient{}).
		Where("id = ? AND has_open_appointment = ?", patientID, false).
		Update("has_open_appointment", true)
	if res.Error != nil {
		return apperrors.Internal("claim patient", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.New(apperrors.KindPatientBusy, "patient %s already has a pending appointment", patientID)
	}
	return nil
}

func releasePatient(tx *gorm.DB, patientID string) error {
	err := tx.Model(&models.Patient{}).
		Where("id = ?", patientID).
		Update("has_open_appointment", false).Error
	if err != nil {
		return apperrors.Internal("release patient", err)
	}
	return nil
}
