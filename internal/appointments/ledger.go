// Package appointments is the appointment ledger: it owns appointment records, their status
// transitions and, through the availability coordinator, the doctor busy flag.
//
// Every mutation runs in one transaction. Slot uniqueness is enforced by the
// (hospital_id, scheduled_time) unique index and the patient and doctor flags by
// compare-and-set updates, so concurrent writers that pass the same pre-checks cannot both
// commit. Queue listeners are notified only after a successful commit.
package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"queuemedix-server/internal/apperrors"
	"queuemedix-server/internal/directory"
	"queuemedix-server/internal/metrics"
	"queuemedix-server/internal/models"
	"queuemedix-server/internal/notify"
)

// QueueNotifier is told which hospital's queue changed after a commit.
type QueueNotifier interface {
	QueueChanged(ctx context.Context, hospitalID string)
}

// Ledger is the authoritative store of appointments.
type Ledger struct {
	db       *gorm.DB
	dir      *directory.Directory
	avail    *Availability
	notifier QueueNotifier
	jobs     notify.Enqueuer
	now      func() time.Time
	logger   zerolog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the clock used for the future-slot check.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a ledger. notifier and jobs may be nil.
func NewLedger(db *gorm.DB, notifier QueueNotifier, jobs notify.Enqueuer, opts ...Option) *Ledger {
	l := &Ledger{
		db:       db,
		dir:      directory.New(db),
		avail:    NewAvailability(db),
		notifier: notifier,
		jobs:     jobs,
		now:      time.Now,
		logger:   log.With().Str("component", "ledger").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CreateInput is a booking request.
type CreateInput struct {
	PatientID     string
	HospitalID    string
	Note          string
	ScheduledTime time.Time
}

// NormalizeSlot maps a scheduled time onto the stored slot grid: UTC, whole seconds.
func NormalizeSlot(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// Create books a pending appointment for the patient at the hospital slot.
func (l *Ledger) Create(ctx context.Context, in CreateInput) (*models.Appointment, error) {
	scheduled := NormalizeSlot(in.ScheduledTime)
	appointment := &models.Appointment{
		PatientID:     in.PatientID,
		HospitalID:    in.HospitalID,
		Note:          in.Note,
		ScheduledTime: scheduled,
		Status:        models.StatusPending,
	}

	var patient *models.Patient
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dir := l.dir.WithTx(tx)

		p, err := dir.GetPatient(ctx, in.PatientID)
		if err != nil {
			return err
		}
		patient = p

		if _, err := dir.GetHospital(ctx, in.HospitalID); err != nil {
			return err
		}

		if !scheduled.After(l.now()) {
			return apperrors.New(apperrors.KindInvalidSchedule, "appointment date cannot be in the past")
		}

		var taken int64
		if err := tx.Model(&models.Appointment{}).
			Where("hospital_id = ? AND scheduled_time = ?", in.HospitalID, scheduled).
			Count(&taken).Error; err != nil {
			return apperrors.Internal("check slot", err)
		}
		if taken > 0 {
			return slotTakenError(scheduled)
		}

		if err := claimPatient(tx, in.PatientID); err != nil {
			return err
		}

		if err := tx.Omit(clause.Associations).Create(appointment).Error; err != nil {
			if isDuplicate(err) {
				return slotTakenError(scheduled)
			}
			return apperrors.Internal("create appointment", err)
		}
		return nil
	})
	l.finish(ctx, "create", in.HospitalID, err)
	if err != nil {
		return nil, err
	}

	notify.Send(context.WithoutCancel(ctx), l.jobs, patient.UserID,
		fmt.Sprintf("Your appointment on %s has been booked.", scheduled.Format(time.RFC1123)))
	return appointment, nil
}

// AssignDoctor attaches an available doctor to the appointment and marks the doctor busy.
// A previously assigned doctor is released in the same transaction.
func (l *Ledger) AssignDoctor(ctx context.Context, appointmentID, doctorID string) (*models.Appointment, error) {
	var (
		appointment *models.Appointment
		doctor      *models.Doctor
	)
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := loadAppointment(tx, appointmentID)
		if err != nil {
			return err
		}
		appointment = a

		d, err := l.dir.WithTx(tx).GetDoctor(ctx, doctorID)
		if err != nil {
			return err
		}
		doctor = d

		if a.Status.Terminal() {
			return apperrors.New(apperrors.KindConflict, "appointment is already %s", a.Status)
		}
		if a.DoctorID != nil && *a.DoctorID == doctorID {
			return nil
		}

		avail := l.avail.WithTx(tx)
		if err := avail.MarkBusy(ctx, doctorID); err != nil {
			return err
		}
		if a.DoctorID != nil {
			if err := avail.MarkFree(ctx, *a.DoctorID); err != nil {
				return err
			}
		}

		if err := tx.Model(&models.Appointment{}).
			Where("id = ?", a.ID).
			Update("doctor_id", doctorID).Error; err != nil {
			return apperrors.Internal("assign doctor", err)
		}
		a.DoctorID = &doctorID
		return nil
	})
	l.finishFor(ctx, "assign_doctor", appointment, err)
	if err != nil {
		return nil, err
	}

	notify.Send(context.WithoutCancel(ctx), l.jobs, appointment.Patient.UserID,
		fmt.Sprintf("Dr. %s has been assigned to your appointment.", doctor.User.FullName()))
	return appointment, nil
}

// Cancel marks the appointment canceled and releases its doctor and patient.
func (l *Ledger) Cancel(ctx context.Context, appointmentID string) (*models.Appointment, error) {
	var appointment *models.Appointment
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := loadAppointment(tx, appointmentID)
		if err != nil {
			return err
		}
		appointment = a

		switch a.Status {
		case models.StatusCanceled:
			return apperrors.New(apperrors.KindAlreadyCanceled, "appointment is already canceled")
		case models.StatusCompleted:
			return apperrors.New(apperrors.KindConflict, "appointment is already completed")
		}

		if err := l.release(ctx, tx, a); err != nil {
			return err
		}
		return setStatus(tx, a, models.StatusCanceled)
	})
	l.finishFor(ctx, "cancel", appointment, err)
	if err != nil {
		return nil, err
	}

	notify.Send(context.WithoutCancel(ctx), l.jobs, appointment.Patient.UserID, "Your appointment has been canceled.")
	return appointment, nil
}

// SetStatus applies any requested status. Moving into a terminal status releases the doctor
// and patient; moving out of one claims them again and fails if either is taken meanwhile.
func (l *Ledger) SetStatus(ctx context.Context, appointmentID string, status models.AppointmentStatus) (*models.Appointment, error) {
	if !status.Valid() {
		return nil, apperrors.New(apperrors.KindValidation, "unknown appointment status %q", status)
	}

	var appointment *models.Appointment
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := loadAppointment(tx, appointmentID)
		if err != nil {
			return err
		}
		appointment = a

		switch {
		case !a.Status.Terminal() && status.Terminal():
			if err := l.release(ctx, tx, a); err != nil {
				return err
			}
		case a.Status.Terminal() && !status.Terminal():
			if err := claimPatient(tx, a.PatientID); err != nil {
				return err
			}
			if a.DoctorID != nil {
				if err := l.avail.WithTx(tx).MarkBusy(ctx, *a.DoctorID); err != nil {
					return err
				}
			}
		}
		return setStatus(tx, a, status)
	})
	l.finishFor(ctx, "set_status", appointment, err)
	if err != nil {
		return nil, err
	}

	notify.Send(context.WithoutCancel(ctx), l.jobs, appointment.Patient.UserID,
		fmt.Sprintf("Appointment status has been updated to %s.", status))
	return appointment, nil
}

// Delete hard-removes the appointment, releasing its doctor and patient if it was open.
func (l *Ledger) Delete(ctx context.Context, appointmentID string) error {
	var appointment *models.Appointment
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := loadAppointment(tx, appointmentID)
		if err != nil {
			return err
		}
		appointment = a

		if !a.Status.Terminal() {
			if err := l.release(ctx, tx, a); err != nil {
				return err
			}
		}
		if err := tx.Delete(&models.Appointment{}, "id = ?", a.ID).Error; err != nil {
			return apperrors.Internal("delete appointment", err)
		}
		return nil
	})
	l.finishFor(ctx, "delete", appointment, err)
	return err
}

// Get returns one appointment.
func (l *Ledger) Get(ctx context.Context, appointmentID string) (*models.Appointment, error) {
	return loadAppointment(l.db.WithContext(ctx), appointmentID)
}

// List returns all appointments.
func (l *Ledger) List(ctx context.Context, page directory.Page) ([]models.Appointment, error) {
	return l.list(ctx, page)
}

// ListByPatient returns a patient's appointments; NotFound if the patient is unknown.
func (l *Ledger) ListByPatient(ctx context.Context, patientID string, page directory.Page) ([]models.Appointment, error) {
	if _, err := l.dir.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}
	return l.list(ctx, page, func(q *gorm.DB) *gorm.DB {
		return q.Where("patient_id = ?", patientID)
	})
}

// ListByHospital returns a hospital's appointments; NotFound if the hospital is unknown.
func (l *Ledger) ListByHospital(ctx context.Context, hospitalID string, page directory.Page) ([]models.Appointment, error) {
	if _, err := l.dir.GetHospital(ctx, hospitalID); err != nil {
		return nil, err
	}
	return l.list(ctx, page, func(q *gorm.DB) *gorm.DB {
		return q.Where("hospital_id = ?", hospitalID)
	})
}

// ListByDoctor returns the appointments a doctor is assigned to.
func (l *Ledger) ListByDoctor(ctx context.Context, doctorID string, page directory.Page) ([]models.Appointment, error) {
	if _, err := l.dir.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return l.list(ctx, page, func(q *gorm.DB) *gorm.DB {
		return q.Where("doctor_id = ?", doctorID)
	})
}

// ListPending returns appointments still waiting to be seen.
func (l *Ledger) ListPending(ctx context.Context, page directory.Page) ([]models.Appointment, error) {
	return l.list(ctx, page, func(q *gorm.DB) *gorm.DB {
		return q.Where("status = ?", models.StatusPending)
	})
}

// ListUncompleted returns every appointment whose status is not completed.
func (l *Ledger) ListUncompleted(ctx context.Context, page directory.Page) ([]models.Appointment, error) {
	return l.list(ctx, page, func(q *gorm.DB) *gorm.DB {
		return q.Where("status <> ?", models.StatusCompleted)
	})
}

func (l *Ledger) list(ctx context.Context, page directory.Page, scopes ...func(*gorm.DB) *gorm.DB) ([]models.Appointment, error) {
	q := l.db.WithContext(ctx).Model(&models.Appointment{}).
		Scopes(scopes...).
		Order("scheduled_time asc").
		Order("id asc")

	var appointments []models.Appointment
	if err := page.Apply(q).Find(&appointments).Error; err != nil {
		return nil, apperrors.Internal("list appointments", err)
	}
	return appointments, nil
}

func (l *Ledger) finishFor(ctx context.Context, op string, a *models.Appointment, err error) {
	hospitalID := ""
	if a != nil {
		hospitalID = a.HospitalID
	}
	l.finish(ctx, op, hospitalID, err)
}

// finish records the outcome and, on success, tells the queue notifier. It runs after the
// transaction has committed.
func (l *Ledger) finish(ctx context.Context, op, hospitalID string, err error) {
	metrics.RecordAppointmentOp(op, err)

	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindInternal {
			l.logger.Error().Err(err).Str("operation", op).Msg("appointment mutation failed")
		} else {
			l.logger.Debug().Err(err).Str("operation", op).Msg("appointment mutation rejected")
		}
		return
	}

	l.logger.Info().Str("operation", op).Str("hospital_id", hospitalID).Msg("appointment mutation committed")
	if l.notifier != nil && hospitalID != "" {
		l.notifier.QueueChanged(context.WithoutCancel(ctx), hospitalID)
	}
}

func loadAppointment(tx *gorm.DB, id string) (*models.Appointment, error) {
	var appointment models.Appointment
	err := tx.Preload("Patient").First(&appointment, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("appointment", id)
	}
	if err != nil {
		return nil, apperrors.Internal("load appointment", err)
	}
	return &appointment, nil
}

func setStatus(tx *gorm.DB, a *models.Appointment, status models.AppointmentStatus) error {
	if err := tx.Model(&models.Appointment{}).
		Where("id = ?", a.ID).
		Update("status", status).Error; err != nil {
		return apperrors.Internal("update appointment status", err)
	}
	a.Status = status
	return nil
}

// release frees the patient and the assigned doctor of an open appointment.
func (l *Ledger) release(ctx context.Context, tx *gorm.DB, a *models.Appointment) error {
	if err := releasePatient(tx, a.PatientID); err != nil {
		return err
	}
	if a.DoctorID != nil {
		return l.avail.WithTx(tx).MarkFree(ctx, *a.DoctorID)
	}
	return nil
}

func slotTakenError(t time.Time) error {
	return apperrors.New(apperrors.KindSlotTaken, "time slot %s is already taken", t.Format(time.RFC3339))
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
