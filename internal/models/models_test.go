package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppointmentStatus(t *testing.T) {
	tests := []struct {
		status   AppointmentStatus
		valid    bool
		terminal bool
	}{
		{StatusPending, true, false},
		{StatusInProgress, true, false},
		{StatusCompleted, true, true},
		{StatusCanceled, true, true},
		{"archived", false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.status.Valid())
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

func TestUserFullName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", (&User{FirstName: "Ada", LastName: "Lovelace"}).FullName())
	assert.Equal(t, "Ada", (&User{FirstName: "Ada"}).FullName())
	assert.Equal(t, "Lovelace", (&User{LastName: "Lovelace"}).FullName())
}

func TestUserPassword(t *testing.T) {
	u := &User{}
	require.NoError(t, u.SetPassword("password123"))
	assert.NotEqual(t, "password123", u.Password)
	assert.True(t, u.CheckPassword("password123"))
	assert.False(t, u.CheckPassword("password124"))
}

func TestSanitizeDropsPassword(t *testing.T) {
	u := &User{Email: "ada@example.com", Password: "hash", Role: RolePatient}
	u.ID = "u1"
	s := u.Sanitize()
	assert.Equal(t, "u1", s.ID)
	assert.Equal(t, RolePatient, s.Role)
}

func TestRefreshTokenUsable(t *testing.T) {
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, (&RefreshToken{ExpiresAt: now.Add(time.Minute)}).Usable(now))
	assert.False(t, (&RefreshToken{ExpiresAt: now}).Usable(now))
	assert.False(t, (&RefreshToken{ExpiresAt: now.Add(time.Minute), IsRevoked: true}).Usable(now))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}
