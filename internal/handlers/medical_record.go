package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"queuemedix-server/internal/apperrors"
	"queuemedix-server/internal/directory"
	"queuemedix-server/internal/middleware"
	"queuemedix-server/internal/models"
	"queuemedix-server/internal/utils"
)

// MedicalRecordHandler handles medical record related requests.
type MedicalRecordHandler struct {
	DB  *gorm.DB
	Dir *directory.Directory
}

// NewMedicalRecordHandler creates a new MedicalRecordHandler.
func NewMedicalRecordHandler(db *gorm.DB, dir *directory.Directory) *MedicalRecordHandler {
	return &MedicalRecordHandler{DB: db, Dir: dir}
}

// CreateMedicalRecordRequest represents the request body for creating a medical record.
type CreateMedicalRecordRequest struct {
	PatientID   string     `json:"patientId" binding:"required"`
	Description string     `json:"description" binding:"required"`
	RecordDate  *time.Time `json:"recordDate"`
}

// CreateMedicalRecord adds a record to a patient's history. The author is the calling
// doctor, if the caller has a doctor profile.
func (h *MedicalRecordHandler) CreateMedicalRecord(c *gin.Context) {
	var req CreateMedicalRecordRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	ctx := c.Request.Context()

	if _, err := h.Dir.GetPatient(ctx, req.PatientID); err != nil {
		utils.RespondError(c, err)
		return
	}

	record := models.MedicalRecord{
		PatientID:   req.PatientID,
		Description: req.Description,
		RecordDate:  time.Now().UTC(),
	}
	if req.RecordDate != nil {
		record.RecordDate = req.RecordDate.UTC()
	}

	userID, _ := middleware.GetUserIDFromContext(c)
	if doctor, err := h.Dir.GetDoctorByUser(ctx, userID); err == nil {
		record.DoctorID = &doctor.ID
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		utils.RespondError(c, err)
		return
	}

	if err := h.DB.WithContext(ctx).Omit("Patient", "Doctor").Create(&record).Error; err != nil {
		utils.RespondError(c, apperrors.Internal("create medical record", err))
		return
	}
	utils.Created(c, "Medical record created successfully", record)
}

// GetMedicalRecordsForPatient lists a patient's records, newest first.
// Patients may only read their own.
func (h *MedicalRecordHandler) GetMedicalRecordsForPatient(c *gin.Context) {
	ctx := c.Request.Context()
	patient, err := h.Dir.GetPatient(ctx, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if err := ensurePatientSelf(c, patient); err != nil {
		utils.RespondError(c, err)
		return
	}

	var records []models.MedicalRecord
	q := h.DB.WithContext(ctx).Where("patient_id = ?", patient.ID).Order("record_date desc")
	if err := utils.PageFromQuery(c).Apply(q).Find(&records).Error; err != nil {
		utils.RespondError(c, apperrors.Internal("list medical records", err))
		return
	}
	utils.Success(c, "Medical records fetched successfully", records)
}

// GetMedicalRecordByID returns one record.
func (h *MedicalRecordHandler) GetMedicalRecordByID(c *gin.Context) {
	record, err := h.loadRecord(c, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if err := ensurePatientSelf(c, &record.Patient); err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Medical record fetched successfully", record)
}

// UpdateMedicalRecordRequest represents the request body for updating a medical record.
type UpdateMedicalRecordRequest struct {
	Description string     `json:"description"`
	RecordDate  *time.Time `json:"recordDate"`
}

// UpdateMedicalRecord amends a record. Only the authoring doctor or a super admin can update.
func (h *MedicalRecordHandler) UpdateMedicalRecord(c *gin.Context) {
	var req UpdateMedicalRecordRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	ctx := c.Request.Context()

	record, err := h.loadRecord(c, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if err := h.ensureAuthor(c, record); err != nil {
		utils.RespondError(c, err)
		return
	}

	if req.Description != "" {
		record.Description = req.Description
	}
	if req.RecordDate != nil {
		record.RecordDate = req.RecordDate.UTC()
	}

	if err := h.DB.WithContext(ctx).Omit("Patient", "Doctor").Save(record).Error; err != nil {
		utils.RespondError(c, apperrors.Internal("update medical record", err))
		return
	}
	utils.Success(c, "Medical record updated successfully", record)
}

// DeleteMedicalRecord removes a record. Only the authoring doctor or a super admin can delete.
func (h *MedicalRecordHandler) DeleteMedicalRecord(c *gin.Context) {
	record, err := h.loadRecord(c, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if err := h.ensureAuthor(c, record); err != nil {
		utils.RespondError(c, err)
		return
	}

	if err := h.DB.WithContext(c.Request.Context()).Delete(&models.MedicalRecord{}, "id = ?", record.ID).Error; err != nil {
		utils.RespondError(c, apperrors.Internal("delete medical record", err))
		return
	}
	utils.Success(c, "Medical record deleted successfully", nil)
}

func (h *MedicalRecordHandler) loadRecord(c *gin.Context, id string) (*models.MedicalRecord, error) {
	var record models.MedicalRecord
	err := h.DB.WithContext(c.Request.Context()).Preload("Patient").First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("medical record", id)
	}
	if err != nil {
		return nil, apperrors.Internal("load medical record", err)
	}
	return &record, nil
}

// ensureAuthor allows super admins and the doctor who wrote the record.
func (h *MedicalRecordHandler) ensureAuthor(c *gin.Context, record *models.MedicalRecord) error {
	role, _ := middleware.GetUserRoleFromContext(c)
	if role == models.RoleSuperAdmin {
		return nil
	}

	userID, _ := middleware.GetUserIDFromContext(c)
	doctor, err := h.Dir.GetDoctorByUser(c.Request.Context(), userID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}
	if doctor == nil || record.DoctorID == nil || *record.DoctorID != doctor.ID {
		return apperrors.New(apperrors.KindForbidden, "only the authoring doctor can change this medical record")
	}
	return nil
}

func ensurePatientSelf(c *gin.Context, patient *models.Patient) error {
	role, _ := middleware.GetUserRoleFromContext(c)
	userID, _ := middleware.GetUserIDFromContext(c)
	if role == models.RolePatient && patient.UserID != userID {
		return apperrors.New(apperrors.KindForbidden, "you are not authorized to view these medical records")
	}
	return nil
}
