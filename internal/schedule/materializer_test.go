package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepo is an in-memory Repository for materializer tests.
type memRepo struct {
	templates  map[uuid.UUID]*ScheduleTemplate
	exceptions map[uuid.UUID]*ScheduleException
	slots      map[uuid.UUID]*Slot
}

func newMemRepo() *memRepo {
	return &memRepo{
		templates:  make(map[uuid.UUID]*ScheduleTemplate),
		exceptions: make(map[uuid.UUID]*ScheduleException),
		slots:      make(map[uuid.UUID]*Slot),
	}
}

func (r *memRepo) CreateTemplate(_ context.Context, t *ScheduleTemplate) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	cp := *t
	r.templates[t.ID] = &cp
	return nil
}

func (r *memRepo) GetTemplateByID(_ context.Context, id uuid.UUID) (*ScheduleTemplate, error) {
	t, ok := r.templates[id]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *memRepo) ListActiveTemplates(_ context.Context, doctorID, branchID uuid.UUID) ([]ScheduleTemplate, error) {
	var out []ScheduleTemplate
	for _, t := range r.templates {
		if t.Active && t.DoctorID == doctorID && t.BranchID == branchID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *memRepo) DeactivateTemplate(_ context.Context, id uuid.UUID) error {
	t, ok := r.templates[id]
	if !ok || !t.Active {
		return ErrTemplateNotFound
	}
	t.Active = false
	return nil
}

func (r *memRepo) CreateException(_ context.Context, e *ScheduleException) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	cp := *e
	r.exceptions[e.ID] = &cp
	return nil
}

func (r *memRepo) ListExceptions(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]ScheduleException, error) {
	var out []ScheduleException
	for _, e := range r.exceptions {
		if e.Active && e.DoctorID == doctorID && !e.Date.Before(from) && !e.Date.After(to) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *memRepo) DeactivateException(_ context.Context, id uuid.UUID) error {
	e, ok := r.exceptions[id]
	if !ok || !e.Active {
		return ErrExceptionNotFound
	}
	e.Active = false
	return nil
}

func (r *memRepo) GetSlotByID(_ context.Context, id uuid.UUID) (*Slot, error) {
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memRepo) find(doctorID, branchID uuid.UUID, date time.Time, start TimeOfDay) *Slot {
	for _, s := range r.slots {
		if s.DoctorID == doctorID && s.BranchID == branchID && s.Date.Equal(date) && s.StartTime == start {
			return s
		}
	}
	return nil
}

func (r *memRepo) FindSlot(_ context.Context, doctorID, branchID uuid.UUID, date time.Time, start TimeOfDay) (*Slot, error) {
	if s := r.find(doctorID, branchID, date, start); s != nil {
		cp := *s
		return &cp, nil
	}
	return nil, ErrSlotNotFound
}

func (r *memRepo) ListSlots(_ context.Context, doctorID, branchID uuid.UUID, from, to time.Time) ([]Slot, error) {
	var out []Slot
	for _, s := range r.slots {
		if s.DoctorID == doctorID && s.BranchID == branchID && !s.Date.Before(from) && !s.Date.After(to) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *memRepo) CreateSlot(_ context.Context, s *Slot) (bool, error) {
	if r.find(s.DoctorID, s.BranchID, s.Date, s.StartTime) != nil {
		return false, nil
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	cp := *s
	r.slots[s.ID] = &cp
	return true, nil
}

func (r *memRepo) DeleteUnbookedSlots(_ context.Context, doctorID, branchID uuid.UUID, from, to time.Time) (int64, error) {
	var n int64
	for id, s := range r.slots {
		if s.DoctorID == doctorID && s.BranchID == branchID &&
			!s.Date.Before(from) && !s.Date.After(to) && s.CurrentBookings == 0 {
			delete(r.slots, id)
			n++
		}
	}
	return n, nil
}

func (r *memRepo) DeletePastUnbookedSlots(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for id, s := range r.slots {
		if s.Date.Before(cutoff) && s.CurrentBookings == 0 {
			delete(r.slots, id)
			n++
		}
	}
	return n, nil
}

func (r *memRepo) BlockSlots(_ context.Context, doctorID, branchID uuid.UUID, date time.Time, start, end *TimeOfDay, reason string, actor *uuid.UUID) (int64, error) {
	var n int64
	for _, s := range r.slots {
		if s.DoctorID != doctorID || s.BranchID != branchID || !s.Date.Equal(date) {
			continue
		}
		if s.CurrentBookings > 0 || s.Blocked {
			continue
		}
		if start != nil && !(s.StartTime < *end && *start < s.EndTime) {
			continue
		}
		s.Blocked = true
		rs := reason
		s.BlockReason = &rs
		s.BlockedBy = actor
		n++
	}
	return n, nil
}

func (r *memRepo) UnblockSlots(_ context.Context, doctorID, branchID uuid.UUID, date time.Time, start, end *TimeOfDay) (int64, error) {
	var n int64
	for _, s := range r.slots {
		if s.DoctorID != doctorID || s.BranchID != branchID || !s.Date.Equal(date) || !s.Blocked {
			continue
		}
		if start != nil && !(s.StartTime < *end && *start < s.EndTime) {
			continue
		}
		s.Blocked = false
		s.BlockReason = nil
		s.BlockedBy = nil
		n++
	}
	return n, nil
}

func (r *memRepo) IncrementSlotBookings(_ context.Context, slotID uuid.UUID) (*Slot, error) {
	s, ok := r.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if !s.Bookable() {
		if s.CurrentBookings >= s.MaxBookings {
			return nil, ErrSlotFull
		}
		return nil, ErrSlotNotBookable
	}
	s.CurrentBookings++
	cp := *s
	return &cp, nil
}

func (r *memRepo) DecrementSlotBookings(_ context.Context, slotID uuid.UUID) (*Slot, error) {
	s, ok := r.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.CurrentBookings > 0 {
		s.CurrentBookings--
	}
	cp := *s
	return &cp, nil
}

// Fixtures

var (
	testMonday = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC) // a Monday
)

func newTestService(t *testing.T) (*Service, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	return NewService(repo, zerolog.Nop()), repo
}

func addTemplate(t *testing.T, repo *memRepo, mutate func(*ScheduleTemplate)) *ScheduleTemplate {
	t.Helper()
	tpl := &ScheduleTemplate{
		ID:          uuid.New(),
		DoctorID:    uuid.New(),
		BranchID:    uuid.New(),
		Weekday:     time.Monday,
		StartTime:   NewTimeOfDay(9, 0),
		EndTime:     NewTimeOfDay(12, 0),
		SlotMinutes: 30,
		MaxBookings: 1,
		Active:      true,
	}
	if mutate != nil {
		mutate(tpl)
	}
	require.NoError(t, repo.CreateTemplate(context.Background(), tpl))
	return tpl
}

func TestGenerate_ExpandsTemplate(t *testing.T) {
	svc, repo := newTestService(t)
	tpl := addTemplate(t, repo, nil)

	created, err := svc.Generate(context.Background(), tpl.DoctorID, tpl.BranchID, testMonday, testMonday, false)
	require.NoError(t, err)
	require.Len(t, created, 6) // 09:00 .. 11:30

	assert.Equal(t, NewTimeOfDay(9, 0), created[0].StartTime)
	assert.Equal(t, NewTimeOfDay(9, 30), created[0].EndTime)
	for _, s := range created {
		assert.True(t, s.Available)
		assert.False(t, s.Blocked)
		assert.Equal(t, 1, s.MaxBookings)
		assert.Equal(t, 0, s.CurrentBookings)
	}
}

func TestGenerate_DropsBreakWindowAndTrailingPartial(t *testing.T) {
	svc, repo := newTestService(t)
	tpl := addTemplate(t, repo, func(tpl *ScheduleTemplate) {
		// 09:00-12:15 with a 10:30-11:00 break: the 10:30 slot is inside
		// the break and the 12:00 candidate does not fit before 12:15.
		tpl.EndTime = NewTimeOfDay(12, 15)
		bs, be := NewTimeOfDay(10, 30), NewTimeOfDay(11, 0)
		tpl.BreakStart, tpl.BreakEnd = &bs, &be
	})

	created, err := svc.Generate(context.Background(), tpl.DoctorID, tpl.BranchID, testMonday, testMonday, false)
	require.NoError(t, err)

	var starts []string
	for _, s := range created {
		starts = append(starts, s.StartTime.String())
	}
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "11:00", "11:30"}, starts)
}

func TestGenerate_Idempotent(t *testing.T) {
	svc, repo := newTestService(t)
	tpl := addTemplate(t, repo, nil)

	first, err := svc.Generate(context.Background(), tpl.DoctorID, tpl.BranchID, testMonday, testMonday, false)
	require.NoError(t, err)
	require.Len(t, first, 6)

	second, err := svc.Generate(context.Background(), tpl.DoctorID, tpl.BranchID, testMonday, testMonday, false)
	require.NoError(t, err)
	assert.Empty(t, second, "re-run over the same range must not duplicate slots")
	assert.Len(t, repo.slots, 6)
}

func TestGenerate_NoTemplates(t *testing.T) {
	svc, _ := newTestService(t)

	created, err := svc.Generate(context.Background(), uuid.New(), uuid.New(), testMonday, testMonday, false)
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestGenerate_InvalidRange(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Generate(context.Background(), uuid.New(), uuid.New(), testMonday, testMonday.AddDate(0, 0, -1), false)
	assert.Error(t, err)
}

func TestGenerate_FullDayExceptionSkipsDate(t *testing.T) {
	svc, repo := newTestService(t)
	tpl := addTemplate(t, repo, nil)

	require.NoError(t, repo.CreateException(context.Background(), &ScheduleException{
		DoctorID: tpl.DoctorID,
		Date:     testMonday,
		Reason:   "public holiday",
		Active:   true,
	}))

	// Two Mondays in range; only the second should produce slots.
	nextMonday := testMonday.AddDate(0, 0, 7)
	created, err := svc.Generate(context.Background(), tpl.DoctorID, tpl.BranchID, testMonday, nextMonday, false)
	require.NoError(t, err)
	require.Len(t, created, 6)
	for _, s := range created {
		assert.True(t, s.Date.Equal(nextMonday))
	}
}

func TestGenerate_PartialExceptionBlocksOverlap(t *testing.T) {
	svc, repo := newTestService(t)
	tpl := addTemplate(t, repo, nil)

	es, ee := NewTimeOfDay(9, 0), NewTimeOfDay(10, 0)
	require.NoError(t, repo.CreateException(context.Background(), &ScheduleException{
		DoctorID:  tpl.DoctorID,
		Date:      testMonday,
		StartTime: &es,
		EndTime:   &ee,
		Reason:    "morning rounds",
		Active:    true,
	}))

	created, err := svc.Generate(context.Background(), tpl.DoctorID, tpl.BranchID, testMonday, testMonday, false)
	require.NoError(t, err)
	require.Len(t, created, 6)

	for _, s := range created {
		if s.StartTime < NewTimeOfDay(10, 0) {
			assert.True(t, s.Blocked, "slot %s should be blocked", s.StartTime)
			require.NotNil(t, s.BlockReason)
			assert.Equal(t, "morning rounds", *s.BlockReason)
		} else {
			assert.False(t, s.Blocked, "slot %s should be open", s.StartTime)
		}
	}
}

func TestGenerate_RegenerateKeepsBookedSlots(t *testing.T) {
	svc, repo := newTestService(t)
	tpl := addTemplate(t, repo, nil)

	created, err := svc.Generate(context.Background(), tpl.DoctorID, tpl.BranchID, testMonday, testMonday, false)
	require.NoError(t, err)
	require.Len(t, created, 6)

	// Book the first slot, then regenerate.
	_, err = repo.IncrementSlotBookings(context.Background(), created[0].ID)
	require.NoError(t, err)

	recreated, err := svc.Generate(context.Background(), tpl.DoctorID, tpl.BranchID, testMonday, testMonday, true)
	require.NoError(t, err)
	assert.Len(t, recreated, 5, "only the unbooked slots are recreated")

	booked, err := repo.GetSlotByID(context.Background(), created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, booked.CurrentBookings)
}

func TestEnsureSlot_ReturnsExisting(t *testing.T) {
	svc, repo := newTestService(t)
	tpl := addTemplate(t, repo, nil)

	created, err := svc.Generate(context.Background(), tpl.DoctorID, tpl.BranchID, testMonday, testMonday, false)
	require.NoError(t, err)

	got, err := svc.EnsureSlot(context.Background(), tpl.DoctorID, tpl.BranchID, testMonday, NewTimeOfDay(9, 0), 30)
	require.NoError(t, err)
	assert.Equal(t, created[0].ID, got.ID)
}

func TestEnsureSlot_MaterializesOnDemand(t *testing.T) {
	svc, repo := newTestService(t)
	tpl := addTemplate(t, repo, nil)

	got, err := svc.EnsureSlot(context.Background(), tpl.DoctorID, tpl.BranchID, testMonday, NewTimeOfDay(10, 30), 30)
	require.NoError(t, err)
	assert.Equal(t, NewTimeOfDay(10, 30), got.StartTime)
	assert.Equal(t, NewTimeOfDay(11, 0), got.EndTime)
	assert.True(t, got.Bookable())
	assert.Len(t, repo.slots, 1, "only the requested slot is materialized")
}

func TestEnsureSlot_NoCoveringTemplate(t *testing.T) {
	svc, repo := newTestService(t)
	tpl := addTemplate(t, repo, nil)

	// Outside template hours.
	_, err := svc.EnsureSlot(context.Background(), tpl.DoctorID, tpl.BranchID, testMonday, NewTimeOfDay(15, 0), 30)
	assert.ErrorIs(t, err, ErrSlotNotFound)

	// Wrong weekday.
	tuesday := testMonday.AddDate(0, 0, 1)
	_, err = svc.EnsureSlot(context.Background(), tpl.DoctorID, tpl.BranchID, tuesday, NewTimeOfDay(9, 0), 30)
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestEnsureSlot_ExceptionBlocks(t *testing.T) {
	svc, repo := newTestService(t)
	tpl := addTemplate(t, repo, nil)

	require.NoError(t, repo.CreateException(context.Background(), &ScheduleException{
		DoctorID: tpl.DoctorID,
		Date:     testMonday,
		Reason:   "conference",
		Active:   true,
	}))

	_, err := svc.EnsureSlot(context.Background(), tpl.DoctorID, tpl.BranchID, testMonday, NewTimeOfDay(9, 0), 30)
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestBlock_Validation(t *testing.T) {
	svc, _ := newTestService(t)

	start := NewTimeOfDay(10, 0)
	_, err := svc.Block(context.Background(), uuid.New(), uuid.New(), testMonday, &start, nil, "x", nil)
	assert.ErrorIs(t, err, ErrInvalidException)

	end := NewTimeOfDay(9, 0)
	_, err = svc.Block(context.Background(), uuid.New(), uuid.New(), testMonday, &start, &end, "x", nil)
	assert.ErrorIs(t, err, ErrInvalidException)
}

func TestBlockAndUnblockWholeDay(t *testing.T) {
	svc, repo := newTestService(t)
	tpl := addTemplate(t, repo, nil)

	created, err := svc.Generate(context.Background(), tpl.DoctorID, tpl.BranchID, testMonday, testMonday, false)
	require.NoError(t, err)
	require.Len(t, created, 6)

	// A booked slot must survive a whole-day block.
	_, err = repo.IncrementSlotBookings(context.Background(), created[0].ID)
	require.NoError(t, err)

	blocked, err := svc.Block(context.Background(), tpl.DoctorID, tpl.BranchID, testMonday, nil, nil, "emergency leave", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 5, blocked)

	unblocked, err := svc.Unblock(context.Background(), tpl.DoctorID, tpl.BranchID, testMonday, nil, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 5, unblocked)
}

func TestCleanup(t *testing.T) {
	svc, repo := newTestService(t)
	tpl := addTemplate(t, repo, nil)

	old := testMonday.AddDate(0, 0, -35)
	for old.Weekday() != time.Monday {
		old = old.AddDate(0, 0, -1)
	}
	created, err := svc.Generate(context.Background(), tpl.DoctorID, tpl.BranchID, old, old, false)
	require.NoError(t, err)
	require.Len(t, created, 6)

	_, err = repo.IncrementSlotBookings(context.Background(), created[0].ID)
	require.NoError(t, err)

	deleted, err := svc.Cleanup(context.Background(), testMonday, 30)
	require.NoError(t, err)
	assert.EqualValues(t, 5, deleted, "booked slots are kept for history")
}
