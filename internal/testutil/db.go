// Package testutil builds throwaway SQLite databases and fixtures for package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"queuemedix-server/internal/models"
)

// NewDB opens a migrated SQLite database in a per-test temp directory.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "queuemedix.db") + "?_pragma=busy_timeout(5000)"
	db, err := models.InitDB(models.DatabaseConfig{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// CreateUser inserts an active user with password "password123".
func CreateUser(t testing.TB, db *gorm.DB, role models.Role, firstName, lastName string) *models.User {
	t.Helper()

	user := &models.User{
		Email:     uuid.NewString() + "@queuemedix.test",
		FirstName: firstName,
		LastName:  lastName,
		Role:      role,
		IsActive:  true,
	}
	require.NoError(t, user.SetPassword("password123"))
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreatePatient inserts a patient profile together with its user.
func CreatePatient(t testing.TB, db *gorm.DB, firstName, lastName string) *models.Patient {
	t.Helper()

	user := CreateUser(t, db, models.RolePatient, firstName, lastName)
	patient := &models.Patient{UserID: user.ID}
	require.NoError(t, db.Omit("User").Create(patient).Error)
	patient.User = *user
	return patient
}

// CreateDoctor inserts an available doctor profile together with its user.
func CreateDoctor(t testing.TB, db *gorm.DB, firstName, lastName string) *models.Doctor {
	t.Helper()

	user := CreateUser(t, db, models.RoleDoctor, firstName, lastName)
	doctor := &models.Doctor{UserID: user.ID, Specialization: "General Practice", IsAvailable: true}
	require.NoError(t, db.Omit("User").Create(doctor).Error)
	doctor.User = *user
	return doctor
}

// CreateHospital inserts a hospital administered by a fresh hospital admin.
func CreateHospital(t testing.TB, db *gorm.DB, name string) *models.Hospital {
	t.Helper()

	admin := CreateUser(t, db, models.RoleHospitalAdmin, "Admin", name)
	hospital := &models.Hospital{Name: name, Address: "1 Main Street", AdminID: admin.ID}
	require.NoError(t, db.Omit("Admin").Create(hospital).Error)
	return hospital
}
