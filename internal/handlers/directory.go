package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"queuemedix-server/internal/apperrors"
	"queuemedix-server/internal/directory"
	"queuemedix-server/internal/middleware"
	"queuemedix-server/internal/models"
	"queuemedix-server/internal/utils"
)

// DirectoryHandler serves hospitals, departments, doctors and patients.
type DirectoryHandler struct {
	Dir *directory.Directory
}

// NewDirectoryHandler creates a new DirectoryHandler.
func NewDirectoryHandler(dir *directory.Directory) *DirectoryHandler {
	return &DirectoryHandler{Dir: dir}
}

// CreateHospitalRequest represents the request body for registering a hospital.
type CreateHospitalRequest struct {
	Name        string `json:"name" binding:"required"`
	Address     string `json:"address" binding:"required"`
	PhoneNumber string `json:"phoneNumber"`
}

// CreateHospital registers a hospital administered by the caller.
func (h *DirectoryHandler) CreateHospital(c *gin.Context) {
	var req CreateHospitalRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	adminID, _ := middleware.GetUserIDFromContext(c)

	hospital := models.Hospital{
		Name:        req.Name,
		Address:     req.Address,
		PhoneNumber: req.PhoneNumber,
		AdminID:     adminID,
	}
	if err := h.Dir.CreateHospital(c.Request.Context(), &hospital); err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Created(c, "Hospital created successfully", hospital)
}

// ListHospitals lists hospitals, filtered by the optional "search" query.
func (h *DirectoryHandler) ListHospitals(c *gin.Context) {
	hospitals, err := h.Dir.ListHospitals(c.Request.Context(), c.Query("search"), utils.PageFromQuery(c))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Hospitals fetched successfully", hospitals)
}

// GetHospital returns one hospital.
func (h *DirectoryHandler) GetHospital(c *gin.Context) {
	hospital, err := h.Dir.GetHospital(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Hospital fetched successfully", hospital)
}

// DepartmentRequest is the body for creating or updating a department.
type DepartmentRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// CreateDepartment adds a department to the hospital in the path.
func (h *DirectoryHandler) CreateDepartment(c *gin.Context) {
	var req DepartmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	department := models.Department{
		HospitalID:  c.Param("id"),
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.Dir.CreateDepartment(c.Request.Context(), &department); err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Created(c, "Department created successfully", department)
}

// ListDepartments lists the departments of the hospital in the path.
func (h *DirectoryHandler) ListDepartments(c *gin.Context) {
	ctx := c.Request.Context()
	hospitalID := c.Param("id")
	if _, err := h.Dir.GetHospital(ctx, hospitalID); err != nil {
		utils.RespondError(c, err)
		return
	}

	departments, err := h.Dir.ListDepartments(ctx, hospitalID, c.Query("search"), utils.PageFromQuery(c))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Departments fetched successfully", departments)
}

// GetDepartment returns one department.
func (h *DirectoryHandler) GetDepartment(c *gin.Context) {
	department, err := h.Dir.GetDepartment(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Department fetched successfully", department)
}

// UpdateDepartmentRequest carries the fields to change; empty fields are kept.
type UpdateDepartmentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateDepartment changes a department's name or description.
func (h *DirectoryHandler) UpdateDepartment(c *gin.Context) {
	var req UpdateDepartmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	department, err := h.Dir.UpdateDepartment(c.Request.Context(), c.Param("id"), req.Name, req.Description)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Department updated successfully", department)
}

// DeleteDepartment removes a department.
func (h *DirectoryHandler) DeleteDepartment(c *gin.Context) {
	if err := h.Dir.DeleteDepartment(c.Request.Context(), c.Param("id")); err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Department deleted successfully", nil)
}

// ListDoctors searches doctors. Query: name, specialization, hospitalId, available.
func (h *DirectoryHandler) ListDoctors(c *gin.Context) {
	available, _ := strconv.ParseBool(c.DefaultQuery("available", "false"))
	filter := directory.DoctorFilter{
		Name:           c.Query("name"),
		Specialization: c.Query("specialization"),
		HospitalID:     c.Query("hospitalId"),
		AvailableOnly:  available,
	}

	doctors, err := h.Dir.ListDoctors(c.Request.Context(), filter, utils.PageFromQuery(c))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Doctors fetched successfully", sanitizeDoctors(doctors))
}

// GetDoctor returns one doctor.
func (h *DirectoryHandler) GetDoctor(c *gin.Context) {
	doctor, err := h.Dir.GetDoctor(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Doctor fetched successfully", sanitizeDoctors([]models.Doctor{*doctor})[0])
}

// GetPatient returns one patient. Patients may only read their own profile.
func (h *DirectoryHandler) GetPatient(c *gin.Context) {
	patient, err := h.Dir.GetPatient(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	respondPatient(c, patient)
}

// GetPatientByCard looks a patient up by hospital card number, as read at the front desk.
func (h *DirectoryHandler) GetPatientByCard(c *gin.Context) {
	patient, err := h.Dir.GetPatientByCard(c.Request.Context(), c.Param("cardId"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	respondPatient(c, patient)
}

func respondPatient(c *gin.Context, patient *models.Patient) {
	userID, _ := middleware.GetUserIDFromContext(c)
	role, _ := middleware.GetUserRoleFromContext(c)
	if role == models.RolePatient && patient.UserID != userID {
		utils.RespondError(c, apperrors.New(apperrors.KindForbidden, "patients can only view their own profile"))
		return
	}

	utils.Success(c, "Patient fetched successfully", PatientResponse{
		ID:                 patient.ID,
		HospitalCardID:     patient.HospitalCardID,
		HasOpenAppointment: patient.HasOpenAppointment,
		User:               patient.User.Sanitize(),
	})
}

// DoctorResponse is a doctor without credentials.
type DoctorResponse struct {
	ID                string               `json:"id"`
	HospitalID        *string              `json:"hospitalId,omitempty"`
	DepartmentID      *string              `json:"departmentId,omitempty"`
	Specialization    string               `json:"specialization,omitempty"`
	YearsOfExperience int                  `json:"yearsOfExperience"`
	IsAvailable       bool                 `json:"isAvailable"`
	User              models.UserSanitized `json:"user"`
}

// PatientResponse is a patient without credentials.
type PatientResponse struct {
	ID                 string               `json:"id"`
	HospitalCardID     string               `json:"hospitalCardId,omitempty"`
	HasOpenAppointment bool                 `json:"hasOpenAppointment"`
	User               models.UserSanitized `json:"user"`
}

func sanitizeDoctors(doctors []models.Doctor) []DoctorResponse {
	out := make([]DoctorResponse, len(doctors))
	for i, d := range doctors {
		out[i] = DoctorResponse{
			ID:                d.ID,
			HospitalID:        d.HospitalID,
			DepartmentID:      d.DepartmentID,
			Specialization:    d.Specialization,
			YearsOfExperience: d.YearsOfExperience,
			IsAvailable:       d.IsAvailable,
			User:              d.User.Sanitize(),
		}
	}
	return out
}
