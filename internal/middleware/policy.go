package middleware

import (
	"github.com/gin-gonic/gin"

	"queuemedix-server/internal/models"
	"queuemedix-server/internal/utils"
)

// Capability names one thing a caller may do.
type Capability string

const (
	CapBookAppointment    Capability = "appointments:book"
	CapCancelAppointment  Capability = "appointments:cancel"
	CapViewAppointments   Capability = "appointments:view"
	CapManageAppointments Capability = "appointments:manage"
	CapManageHospitals    Capability = "hospitals:manage"
	CapManageDepartments  Capability = "departments:manage"
	CapReadRecords        Capability = "records:read"
	CapWriteRecords       Capability = "records:write"
	CapViewQueue          Capability = "queue:view"
	CapViewDirectory      Capability = "directory:view"
)

// Policy maps each role to the capabilities it holds.
type Policy map[models.Role]map[Capability]bool

func grant(caps ...Capability) map[Capability]bool {
	m := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		m[c] = true
	}
	return m
}

// DefaultPolicy is the server's role table. Patients are further limited to their own
// records by the handlers.
var DefaultPolicy = Policy{
	models.RoleSuperAdmin: grant(
		CapBookAppointment, CapCancelAppointment, CapViewAppointments, CapManageAppointments,
		CapManageHospitals, CapManageDepartments, CapReadRecords, CapWriteRecords,
		CapViewQueue, CapViewDirectory,
	),
	models.RoleHospitalAdmin: grant(
		CapBookAppointment, CapCancelAppointment, CapViewAppointments, CapManageAppointments,
		CapManageHospitals, CapManageDepartments, CapReadRecords,
		CapViewQueue, CapViewDirectory,
	),
	models.RoleDoctor: grant(
		CapCancelAppointment, CapViewAppointments, CapManageAppointments,
		CapReadRecords, CapWriteRecords, CapViewQueue, CapViewDirectory,
	),
	models.RolePatient: grant(
		CapBookAppointment, CapCancelAppointment, CapViewAppointments,
		CapReadRecords, CapViewQueue, CapViewDirectory,
	),
}

// Allows reports whether role holds capability.
func (p Policy) Allows(role models.Role, capability Capability) bool {
	return p[role][capability]
}

// Require aborts with 403 unless the authenticated role holds capability.
// It should be used *after* AuthMiddleware.
func (p Policy) Require(capability Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := GetUserRoleFromContext(c)
		if !ok {
			utils.InternalServerError(c, "User role not found in context. AuthMiddleware might be missing.")
			c.Abort()
			return
		}

		if !p.Allows(role, capability) {
			utils.Forbidden(c, "You do not have permission to access this resource.")
			c.Abort()
			return
		}

		c.Next()
	}
}
