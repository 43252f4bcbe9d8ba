package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"queuemedix-server/internal/appointments"
	"queuemedix-server/internal/apperrors"
	"queuemedix-server/internal/directory"
	"queuemedix-server/internal/middleware"
	"queuemedix-server/internal/models"
	"queuemedix-server/internal/utils"
)

// AppointmentHandler handles appointment related requests.
type AppointmentHandler struct {
	Ledger *appointments.Ledger
	Dir    *directory.Directory
}

// NewAppointmentHandler creates a new AppointmentHandler.
func NewAppointmentHandler(ledger *appointments.Ledger, dir *directory.Directory) *AppointmentHandler {
	return &AppointmentHandler{Ledger: ledger, Dir: dir}
}

// CreateAppointmentRequest represents the request body for creating an appointment.
// PatientID is required for staff and ignored for patients, who always book for themselves.
type CreateAppointmentRequest struct {
	PatientID     string    `json:"patientId"`
	HospitalID    string    `json:"hospitalId" binding:"required"`
	Note          string    `json:"note"`
	ScheduledTime time.Time `json:"scheduledTime" binding:"required"`
}

// CreateAppointment books a slot.
func (h *AppointmentHandler) CreateAppointment(c *gin.Context) {
	var req CreateAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	patientID, isPatient, err := h.callerPatientID(c)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if !isPatient {
		patientID = req.PatientID
	}
	if patientID == "" {
		utils.BadRequest(c, "patientId is required")
		return
	}

	appointment, err := h.Ledger.Create(c.Request.Context(), appointments.CreateInput{
		PatientID:     patientID,
		HospitalID:    req.HospitalID,
		Note:          req.Note,
		ScheduledTime: req.ScheduledTime,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Created(c, "Appointment created successfully", appointment)
}

// ListAppointments lists every appointment. The "status" query narrows it to "pending" or
// "uncompleted".
func (h *AppointmentHandler) ListAppointments(c *gin.Context) {
	ctx := c.Request.Context()
	page := utils.PageFromQuery(c)

	var (
		list []models.Appointment
		err  error
	)
	switch c.Query("status") {
	case "":
		list, err = h.Ledger.List(ctx, page)
	case string(models.StatusPending):
		list, err = h.Ledger.ListPending(ctx, page)
	case "uncompleted":
		list, err = h.Ledger.ListUncompleted(ctx, page)
	default:
		utils.BadRequest(c, "status must be pending or uncompleted")
		return
	}
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointments fetched successfully", list)
}

// ListPending lists pending appointments.
func (h *AppointmentHandler) ListPending(c *gin.Context) {
	list, err := h.Ledger.ListPending(c.Request.Context(), utils.PageFromQuery(c))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Pending appointments fetched successfully", list)
}

// ListUncompleted lists appointments that are not completed.
func (h *AppointmentHandler) ListUncompleted(c *gin.Context) {
	list, err := h.Ledger.ListUncompleted(c.Request.Context(), utils.PageFromQuery(c))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Uncompleted appointments fetched successfully", list)
}

// GetMyAppointments lists the caller's appointments: as patient, or as assigned doctor.
func (h *AppointmentHandler) GetMyAppointments(c *gin.Context) {
	ctx := c.Request.Context()
	userID, _ := middleware.GetUserIDFromContext(c)
	role, _ := middleware.GetUserRoleFromContext(c)
	page := utils.PageFromQuery(c)

	var (
		list []models.Appointment
		err  error
	)
	switch role {
	case models.RolePatient:
		var patient *models.Patient
		if patient, err = h.Dir.GetPatientByUser(ctx, userID); err == nil {
			list, err = h.Ledger.ListByPatient(ctx, patient.ID, page)
		}
	case models.RoleDoctor:
		var doctor *models.Doctor
		if doctor, err = h.Dir.GetDoctorByUser(ctx, userID); err == nil {
			list, err = h.Ledger.ListByDoctor(ctx, doctor.ID, page)
		}
	default:
		list, err = h.Ledger.List(ctx, page)
	}
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointments fetched successfully", list)
}

// GetAppointmentByID returns one appointment. Patients only see their own.
func (h *AppointmentHandler) GetAppointmentByID(c *gin.Context) {
	appointment, err := h.Ledger.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if err := h.ensureOwner(c, appointment.PatientID); err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointment fetched successfully", appointment)
}

// ListByPatient lists the appointments of the patient in the path.
func (h *AppointmentHandler) ListByPatient(c *gin.Context) {
	patientID := c.Param("id")
	if err := h.ensureOwner(c, patientID); err != nil {
		utils.RespondError(c, err)
		return
	}

	list, err := h.Ledger.ListByPatient(c.Request.Context(), patientID, utils.PageFromQuery(c))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointments fetched successfully", list)
}

// ListByHospital lists the appointments of the hospital in the path.
func (h *AppointmentHandler) ListByHospital(c *gin.Context) {
	list, err := h.Ledger.ListByHospital(c.Request.Context(), c.Param("id"), utils.PageFromQuery(c))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointments fetched successfully", list)
}

// ListByDoctor lists the appointments assigned to the doctor in the path.
func (h *AppointmentHandler) ListByDoctor(c *gin.Context) {
	list, err := h.Ledger.ListByDoctor(c.Request.Context(), c.Param("id"), utils.PageFromQuery(c))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointments fetched successfully", list)
}

// AssignDoctorRequest represents the request body for assigning a doctor.
type AssignDoctorRequest struct {
	DoctorID string `json:"doctorId" binding:"required"`
}

// AssignDoctor attaches a doctor to the appointment.
func (h *AppointmentHandler) AssignDoctor(c *gin.Context) {
	var req AssignDoctorRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	appointment, err := h.Ledger.AssignDoctor(c.Request.Context(), c.Param("id"), req.DoctorID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Doctor assigned successfully", appointment)
}

// UpdateAppointmentStatusRequest represents the request body for updating an appointment's status.
type UpdateAppointmentStatusRequest struct {
	Status models.AppointmentStatus `json:"status" binding:"required" validate:"appointment_status"`
}

// UpdateAppointmentStatus sets the appointment's status.
func (h *AppointmentHandler) UpdateAppointmentStatus(c *gin.Context) {
	var req UpdateAppointmentStatusRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	appointment, err := h.Ledger.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointment status updated successfully", appointment)
}

// CancelAppointment cancels an appointment. Patients may only cancel their own.
func (h *AppointmentHandler) CancelAppointment(c *gin.Context) {
	ctx := c.Request.Context()
	existing, err := h.Ledger.Get(ctx, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if err := h.ensureOwner(c, existing.PatientID); err != nil {
		utils.RespondError(c, err)
		return
	}

	appointment, err := h.Ledger.Cancel(ctx, existing.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointment canceled successfully", appointment)
}

// DeleteAppointment hard-removes an appointment.
func (h *AppointmentHandler) DeleteAppointment(c *gin.Context) {
	if err := h.Ledger.Delete(c.Request.Context(), c.Param("id")); err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointment deleted successfully", nil)
}

// callerPatientID resolves the caller's patient profile when the caller is a patient.
func (h *AppointmentHandler) callerPatientID(c *gin.Context) (string, bool, error) {
	role, _ := middleware.GetUserRoleFromContext(c)
	if role != models.RolePatient {
		return "", false, nil
	}
	userID, _ := middleware.GetUserIDFromContext(c)
	patient, err := h.Dir.GetPatientByUser(c.Request.Context(), userID)
	if err != nil {
		return "", true, err
	}
	return patient.ID, true, nil
}

// ensureOwner rejects patients acting on another patient's appointments.
func (h *AppointmentHandler) ensureOwner(c *gin.Context, patientID string) error {
	own, isPatient, err := h.callerPatientID(c)
	if err != nil {
		return err
	}
	if isPatient && own != patientID {
		return apperrors.New(apperrors.KindForbidden, "patients can only access their own appointments")
	}
	return nil
}
