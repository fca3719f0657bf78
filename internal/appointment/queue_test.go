package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/clinic-scheduling/internal/schedule"
)

func seedQueueAppointment(t *testing.T, env *testEnv, start schedule.TimeOfDay, priority Priority, status Status) *Appointment {
	t.Helper()

	appt := &Appointment{
		PatientID: env.patientID,
		DoctorID:  &env.doctorID,
		BranchID:  env.branchID,
		Date:      env.date,
		StartTime: start,
		EndTime:   start + 30,
		Status:    status,
		Priority:  priority,
		Source:    "front_desk",
	}
	require.NoError(t, env.repo.CreateAppointment(context.Background(), appt))

	if status == StatusCheckedIn {
		// FIFO position follows seeding order.
		at := env.date.Add(time.Duration(len(env.repo.appts)) * time.Minute)
		env.repo.appts[appt.ID].CheckedInAt = &at
	}
	return appt
}

func TestDailyQueue_PriorityThenStartTime(t *testing.T) {
	env := newTestEnv(t)

	seedQueueAppointment(t, env, schedule.NewTimeOfDay(9, 0), PriorityNormal, StatusConfirmed)
	emergency := seedQueueAppointment(t, env, schedule.NewTimeOfDay(11, 0), PriorityEmergency, StatusRequested)
	urgent := seedQueueAppointment(t, env, schedule.NewTimeOfDay(10, 0), PriorityUrgent, StatusConfirmed)
	seedQueueAppointment(t, env, schedule.NewTimeOfDay(8, 0), PriorityNormal, StatusConfirmed)

	queue, err := env.svc.DailyQueue(context.Background(), env.branchID, env.date, nil, false)
	require.NoError(t, err)
	require.Len(t, queue, 4)

	// Emergency jumps the whole queue despite its late start time.
	assert.Equal(t, emergency.ID, queue[0].ID)
	assert.Equal(t, urgent.ID, queue[1].ID)
	assert.Equal(t, schedule.NewTimeOfDay(8, 0), queue[2].StartTime)
	assert.Equal(t, schedule.NewTimeOfDay(9, 0), queue[3].StartTime)
}

func TestDailyQueue_ExcludesTerminal(t *testing.T) {
	env := newTestEnv(t)

	active := seedQueueAppointment(t, env, schedule.NewTimeOfDay(9, 0), PriorityNormal, StatusConfirmed)
	seedQueueAppointment(t, env, schedule.NewTimeOfDay(9, 30), PriorityNormal, StatusCancelled)
	seedQueueAppointment(t, env, schedule.NewTimeOfDay(10, 0), PriorityNormal, StatusNoShow)
	seedQueueAppointment(t, env, schedule.NewTimeOfDay(10, 30), PriorityNormal, StatusRescheduled)
	completed := seedQueueAppointment(t, env, schedule.NewTimeOfDay(11, 0), PriorityNormal, StatusCompleted)

	queue, err := env.svc.DailyQueue(context.Background(), env.branchID, env.date, nil, false)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, active.ID, queue[0].ID)

	withCompleted, err := env.svc.DailyQueue(context.Background(), env.branchID, env.date, nil, true)
	require.NoError(t, err)
	require.Len(t, withCompleted, 2)
	assert.Equal(t, completed.ID, withCompleted[1].ID)
}

func TestDailyQueue_FiltersByDoctor(t *testing.T) {
	env := newTestEnv(t)

	mine := seedQueueAppointment(t, env, schedule.NewTimeOfDay(9, 0), PriorityNormal, StatusConfirmed)

	other := uuid.New()
	appt := seedQueueAppointment(t, env, schedule.NewTimeOfDay(9, 30), PriorityNormal, StatusConfirmed)
	env.repo.appts[appt.ID].DoctorID = &other

	queue, err := env.svc.DailyQueue(context.Background(), env.branchID, env.date, &env.doctorID, false)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, mine.ID, queue[0].ID)
}

func TestWaitingPatients_FIFOByCheckIn(t *testing.T) {
	env := newTestEnv(t)

	first := seedQueueAppointment(t, env, schedule.NewTimeOfDay(10, 0), PriorityNormal, StatusCheckedIn)
	second := seedQueueAppointment(t, env, schedule.NewTimeOfDay(9, 0), PriorityUrgent, StatusCheckedIn)
	seedQueueAppointment(t, env, schedule.NewTimeOfDay(8, 0), PriorityNormal, StatusConfirmed)
	seedQueueAppointment(t, env, schedule.NewTimeOfDay(8, 30), PriorityNormal, StatusInProgress)

	waiting, err := env.svc.WaitingPatients(context.Background(), env.branchID, env.date, nil)
	require.NoError(t, err)
	require.Len(t, waiting, 2, "only checked-in patients are waiting")

	// Check-in order wins over priority and start time here.
	assert.Equal(t, first.ID, waiting[0].ID)
	assert.Equal(t, second.ID, waiting[1].ID)
}

func TestNextPatient(t *testing.T) {
	env := newTestEnv(t)

	next, err := env.svc.NextPatient(context.Background(), env.branchID, env.date, nil)
	require.NoError(t, err)
	assert.Nil(t, next, "empty queue yields no next patient")

	head := seedQueueAppointment(t, env, schedule.NewTimeOfDay(9, 0), PriorityNormal, StatusCheckedIn)
	seedQueueAppointment(t, env, schedule.NewTimeOfDay(9, 30), PriorityNormal, StatusCheckedIn)

	next, err = env.svc.NextPatient(context.Background(), env.branchID, env.date, nil)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, head.ID, next.ID)
}
