package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"queuemedix-server/internal/appointments"
	"queuemedix-server/internal/config"
	"queuemedix-server/internal/models"
	"queuemedix-server/internal/notify"
	"queuemedix-server/internal/queue"
	"queuemedix-server/internal/routes"
	"queuemedix-server/internal/testutil"
	"queuemedix-server/internal/utils"
)

type env struct {
	t        *testing.T
	db       *gorm.DB
	cfg      *config.Config
	router   *gin.Engine
	hub      *queue.Hub
	jobs     *recordingJobs
	hospital *models.Hospital
}

type recordingJobs struct {
	mu   sync.Mutex
	jobs []notify.Job
}

func (q *recordingJobs) Enqueue(_ context.Context, job notify.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingJobs) to(recipientID string) []notify.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []notify.Job
	for _, j := range q.jobs {
		if j.RecipientID == recipientID {
			out = append(out, j)
		}
	}
	return out
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	cfg := &config.Config{
		Origin:                    "*",
		Environment:               "test",
		JWTSecret:                 "test-secret",
		JWTRefreshSecret:          "test-refresh-secret",
		JWTExpirationMinutes:      15,
		JWTRefreshExpirationHours: 24,
		Queue:                     config.QueueConfig{SendBuffer: 8, WriteTimeout: time.Second},
	}

	projector := queue.NewStoreProjector(db, nil)
	hub := queue.NewHub(projector)
	jobs := &recordingJobs{}
	ledger := appointments.NewLedger(db, hub, jobs)

	router := gin.New()
	routes.SetupRoutes(router, routes.Dependencies{
		DB:        db,
		Cfg:       cfg,
		Ledger:    ledger,
		Hub:       hub,
		Projector: projector,
		Jobs:      jobs,
	})

	return &env{
		t:        t,
		db:       db,
		cfg:      cfg,
		router:   router,
		hub:      hub,
		jobs:     jobs,
		hospital: testutil.CreateHospital(t, db, "St. Mary"),
	}
}

func (e *env) token(user *models.User) string {
	e.t.Helper()
	access, _, err := utils.GenerateTokens(user, e.cfg)
	require.NoError(e.t, err)
	return access
}

func (e *env) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, utils.ResponseData) {
	e.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp utils.ResponseData
	if w.Body.Len() > 0 {
		require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func decodeData(t *testing.T, resp utils.ResponseData, dest interface{}) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dest))
}

func TestRegisterAndLogin(t *testing.T) {
	e := newEnv(t)

	w, _ := e.do(http.MethodPost, "/api/v1/auth/register", "", map[string]interface{}{
		"firstName": "Ada",
		"lastName":  "Lovelace",
		"email":     "ada@example.com",
		"password":  "password123",
		"role":      "patient",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var patients int64
	require.NoError(t, e.db.Model(&models.Patient{}).Count(&patients).Error)
	assert.EqualValues(t, 1, patients)

	w, resp := e.do(http.MethodPost, "/api/v1/auth/register", "", map[string]interface{}{
		"firstName": "Ada",
		"lastName":  "Again",
		"email":     "ada@example.com",
		"password":  "password123",
		"role":      "patient",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", resp.Code)

	w, resp = e.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "ada@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var login struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	decodeData(t, resp, &login)
	assert.NotEmpty(t, login.AccessToken)

	w, _ = e.do(http.MethodGet, "/api/v1/auth/profile", login.AccessToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = e.do(http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{"refreshToken": login.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	var rotated struct {
		RefreshToken string `json:"refreshToken"`
	}
	decodeData(t, resp, &rotated)
	assert.NotEqual(t, login.RefreshToken, rotated.RefreshToken)

	w, _ = e.do(http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{"refreshToken": login.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "a rotated token cannot be reused")

	w, _ = e.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "ada@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAppointmentFlow(t *testing.T) {
	e := newEnv(t)
	patient := testutil.CreatePatient(t, e.db, "Ada", "Lovelace")
	doctor := testutil.CreateDoctor(t, e.db, "Gregory", "House")
	patientToken := e.token(&patient.User)
	doctorToken := e.token(&doctor.User)

	at := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	w, resp := e.do(http.MethodPost, "/api/v1/appointments", patientToken, map[string]interface{}{
		"hospitalId":    e.hospital.ID,
		"note":          "annual checkup",
		"scheduledTime": at,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created models.Appointment
	decodeData(t, resp, &created)
	assert.Equal(t, patient.ID, created.PatientID, "patients book for themselves")
	assert.Equal(t, models.StatusPending, created.Status)

	w, resp = e.do(http.MethodPost, "/api/v1/appointments", patientToken, map[string]interface{}{
		"hospitalId":    e.hospital.ID,
		"scheduledTime": at.Add(time.Hour),
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "PATIENT_BUSY", resp.Code)

	w, _ = e.do(http.MethodPut, "/api/v1/appointments/"+created.ID+"/doctor", patientToken, map[string]string{"doctorId": doctor.ID})
	assert.Equal(t, http.StatusForbidden, w.Code, "patients cannot assign doctors")

	w, _ = e.do(http.MethodPut, "/api/v1/appointments/"+created.ID+"/doctor", doctorToken, map[string]string{"doctorId": doctor.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, resp = e.do(http.MethodPatch, "/api/v1/appointments/"+created.ID+"/status", doctorToken, map[string]string{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, w.Code, resp.Error)

	w, _ = e.do(http.MethodPatch, "/api/v1/appointments/"+created.ID+"/status", doctorToken, map[string]string{"status": "in_progress"})
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = e.do(http.MethodGet, "/api/v1/hospitals/"+e.hospital.ID+"/queue", patientToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snapshot queue.Snapshot
	decodeData(t, resp, &snapshot)
	require.Len(t, snapshot.Data, 1)
	assert.Equal(t, "Ada Lovelace", snapshot.Data[0].Patient)
	assert.Equal(t, models.StatusInProgress, snapshot.Data[0].Status)

	w, _ = e.do(http.MethodPost, "/api/v1/appointments/"+created.ID+"/cancel", patientToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = e.do(http.MethodPost, "/api/v1/appointments/"+created.ID+"/cancel", patientToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ALREADY_CANCELED", resp.Code)

	var stored models.Doctor
	require.NoError(t, e.db.First(&stored, "id = ?", doctor.ID).Error)
	assert.True(t, stored.IsAvailable)
}

func TestAppointmentErrorsMapToStatus(t *testing.T) {
	e := newEnv(t)
	admin := testutil.CreateUser(t, e.db, models.RoleHospitalAdmin, "Head", "Nurse")
	ada := testutil.CreatePatient(t, e.db, "Ada", "Lovelace")
	grace := testutil.CreatePatient(t, e.db, "Grace", "Hopper")
	token := e.token(admin)

	at := time.Now().Add(24 * time.Hour).UTC()
	w, _ := e.do(http.MethodPost, "/api/v1/appointments", token, map[string]interface{}{
		"patientId": ada.ID, "hospitalId": e.hospital.ID, "scheduledTime": at,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	tests := []struct {
		name   string
		body   map[string]interface{}
		status int
		code   string
	}{
		{"slot taken", map[string]interface{}{"patientId": grace.ID, "hospitalId": e.hospital.ID, "scheduledTime": at}, http.StatusConflict, "SLOT_TAKEN"},
		{"past slot", map[string]interface{}{"patientId": grace.ID, "hospitalId": e.hospital.ID, "scheduledTime": time.Now().Add(-time.Hour)}, http.StatusBadRequest, "INVALID_SCHEDULE"},
		{"unknown hospital", map[string]interface{}{"patientId": grace.ID, "hospitalId": "missing", "scheduledTime": at}, http.StatusNotFound, "NOT_FOUND"},
		{"unknown patient", map[string]interface{}{"patientId": "missing", "hospitalId": e.hospital.ID, "scheduledTime": at}, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := e.do(http.MethodPost, "/api/v1/appointments", token, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, resp.Code)
		})
	}

	w, _ = e.do(http.MethodPost, "/api/v1/appointments", token, map[string]interface{}{"hospitalId": e.hospital.ID, "scheduledTime": at})
	assert.Equal(t, http.StatusBadRequest, w.Code, "staff must name the patient")
}

func TestPatientsCannotReadOthersAppointments(t *testing.T) {
	e := newEnv(t)
	ada := testutil.CreatePatient(t, e.db, "Ada", "Lovelace")
	grace := testutil.CreatePatient(t, e.db, "Grace", "Hopper")

	w, resp := e.do(http.MethodPost, "/api/v1/appointments", e.token(&ada.User), map[string]interface{}{
		"hospitalId": e.hospital.ID, "scheduledTime": time.Now().Add(time.Hour),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.Appointment
	decodeData(t, resp, &created)

	graceToken := e.token(&grace.User)
	w, _ = e.do(http.MethodGet, "/api/v1/appointments/"+created.ID, graceToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = e.do(http.MethodPost, "/api/v1/appointments/"+created.ID+"/cancel", graceToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = e.do(http.MethodGet, "/api/v1/appointments/me", graceToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	e := newEnv(t)

	w, _ := e.do(http.MethodGet, "/api/v1/appointments/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = e.do(http.MethodGet, "/api/v1/appointments/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLiveQueueWebsocket(t *testing.T) {
	e := newEnv(t)
	patient := testutil.CreatePatient(t, e.db, "Ada", "Lovelace")
	token := e.token(&patient.User)

	srv := httptest.NewServer(e.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/queue/" + e.hospital.ID + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() queue.Snapshot {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var s queue.Snapshot
		require.NoError(t, conn.ReadJSON(&s))
		return s
	}

	initial := read()
	assert.Equal(t, queue.MessageTypeQueueUpdate, initial.Type)
	assert.Empty(t, initial.Data)

	w, _ := e.do(http.MethodPost, "/api/v1/appointments", token, map[string]interface{}{
		"hospitalId": e.hospital.ID, "scheduledTime": time.Now().Add(time.Hour),
	})
	require.Equal(t, http.StatusCreated, w.Code)

	update := read()
	require.Len(t, update.Data, 1)
	assert.Equal(t, patient.ID, update.Data[0].PatientID)
	assert.Equal(t, models.StatusPending, update.Data[0].Status)

	conn.Close()
	assert.Eventually(t, func() bool { return e.hub.Hospitals() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestLiveQueueUnknownHospital(t *testing.T) {
	e := newEnv(t)
	patient := testutil.CreatePatient(t, e.db, "Ada", "Lovelace")

	w, resp := e.do(http.MethodGet, "/ws/queue/missing", e.token(&patient.User), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp.Code)
}
