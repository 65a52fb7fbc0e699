package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyConfirms(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	appt := f.reserve(t, firstSlot)

	f.clock.Advance(4 * time.Minute)
	confirmed, err := f.svc.Verify(ctx, appt.ID, *appt.Code)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
	assert.True(t, confirmed.IsVerified)
	assert.Nil(t, confirmed.Code)
	assert.Nil(t, confirmed.CodeExpiresAt)

	_, err = f.svc.Verify(ctx, appt.ID, *appt.Code)
	assert.ErrorIs(t, err, ErrNotPending)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestVerifyAtExactExpiryStillCounts(t *testing.T) {
	f := newFixture(t, nil)
	appt := f.reserve(t, firstSlot)

	f.clock.Set(*appt.CodeExpiresAt)
	confirmed, err := f.svc.Verify(context.Background(), appt.ID, *appt.Code)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
}

func TestVerifyMismatchKeepsWindow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	appt := f.reserve(t, firstSlot)

	_, err := f.svc.Verify(ctx, appt.ID, "999999")
	assert.ErrorIs(t, err, ErrMismatch)

	_, err = f.svc.Verify(ctx, appt.ID, "")
	assert.ErrorIs(t, err, ErrMismatch)

	stored, err := f.svc.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusTentative, stored.Status)
	assert.Equal(t, appt.CodeExpiresAt, stored.CodeExpiresAt)
	assert.Equal(t, appt.Version, stored.Version, "mismatch writes nothing")

	_, err = f.svc.Verify(ctx, appt.ID, *appt.Code)
	require.NoError(t, err)
}

func TestVerifyAfterExpiryReleasesSlot(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	appt := f.reserve(t, firstSlot)

	f.clock.Advance(6 * time.Minute)
	_, err := f.svc.Verify(ctx, appt.ID, *appt.Code)
	assert.ErrorIs(t, err, ErrExpired)

	status, err := f.svc.GetStatus(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, status)

	open, err := f.svc.ListOpenSlots(ctx, f.provider.ID, "2030-03-11")
	require.NoError(t, err)
	assert.Contains(t, open, firstSlot)

	// no resurrection: the right code after the lapse keeps failing
	_, err = f.svc.Verify(ctx, appt.ID, *appt.Code)
	assert.ErrorIs(t, err, ErrNotPending)

	// someone else can take the slot now
	f.reserve(t, firstSlot)
}

func TestReissueInvalidatesOldCode(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	appt := f.reserve(t, firstSlot)
	oldCode := *appt.Code

	f.clock.Advance(3 * time.Minute)
	reissued, err := f.svc.ReissueCode(ctx, appt.ID)
	require.NoError(t, err)
	require.NotNil(t, reissued.Code)
	assert.NotEqual(t, oldCode, *reissued.Code)
	assert.Equal(t, f.clock.Now().Add(5*time.Minute), *reissued.CodeExpiresAt)

	notice := f.notifier.last()
	assert.True(t, notice.Reissued)
	assert.Equal(t, *reissued.Code, notice.Code)

	_, err = f.svc.Verify(ctx, appt.ID, oldCode)
	assert.ErrorIs(t, err, ErrMismatch)

	// the new window runs from the reissue, past the original expiry
	f.clock.Advance(4 * time.Minute)
	confirmed, err := f.svc.Verify(ctx, appt.ID, *reissued.Code)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
}

func TestIssueCodeRules(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	appt := f.reserve(t, firstSlot)
	issued, err := f.svc.IssueCode(ctx, appt.ID)
	require.NoError(t, err)
	assert.NotEqual(t, *appt.Code, *issued.Code)

	_, err = f.svc.Verify(ctx, appt.ID, *issued.Code)
	require.NoError(t, err)
	_, err = f.svc.IssueCode(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	lapsed := f.reserve(t, secondSlot)
	f.clock.Advance(10 * time.Minute)
	_, err = f.svc.ReissueCode(ctx, lapsed.ID)
	assert.ErrorIs(t, err, ErrExpired)
	status, err := f.svc.GetStatus(ctx, lapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, status)

	_, err = f.svc.IssueCode(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestCancelReleasesImmediately(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	appt := f.reserve(t, firstSlot)
	_, err := f.svc.Verify(ctx, appt.ID, *appt.Code)
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, appt.ID, ActorProvider)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	open, err := f.svc.ListOpenSlots(ctx, f.provider.ID, "2030-03-11")
	require.NoError(t, err)
	assert.Contains(t, open, firstSlot)

	again := f.reserve(t, firstSlot)
	assert.NotEqual(t, appt.ID, again.ID)
}

func TestCancelIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	appt := f.reserve(t, firstSlot)

	first, err := f.svc.Cancel(ctx, appt.ID, "")
	require.NoError(t, err)
	second, err := f.svc.Cancel(ctx, appt.ID, ActorStaff)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, second.Status)
	assert.Equal(t, first.Version, second.Version, "second cancel writes nothing")

	cancelEvents := 0
	for _, ev := range f.repo.Events() {
		if ev.EventType == EventAppointmentCancelled {
			cancelEvents++
		}
	}
	assert.Equal(t, 1, cancelEvents)
}

func TestCancelRules(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	appt := f.reserve(t, firstSlot)

	_, err := f.svc.Cancel(ctx, appt.ID, Actor("robot"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Cancel(ctx, uuid.New(), ActorPatient)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Verify(ctx, appt.ID, *appt.Code)
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, appt.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, appt.ID, ActorPatient)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCompleteRules(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	appt := f.reserve(t, firstSlot)

	_, err := f.svc.Complete(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidState, "tentative cannot complete")

	_, err = f.svc.Verify(ctx, appt.ID, *appt.Code)
	require.NoError(t, err)
	done, err := f.svc.Complete(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)

	_, err = f.svc.Complete(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	// a completed visit still occupies its slot
	_, err = f.svc.Reserve(ctx, ReserveRequest{ProviderID: f.provider.ID, At: firstSlot, PatientID: uuid.New()})
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestCompletedIsNotResurrected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	appt := f.reserve(t, firstSlot)

	_, err := f.svc.Verify(ctx, appt.ID, *appt.Code)
	require.NoError(t, err)
	done, err := f.svc.Complete(ctx, appt.ID)
	require.NoError(t, err)
	events := len(f.repo.Events())

	_, err = f.svc.Verify(ctx, appt.ID, *appt.Code)
	assert.ErrorIs(t, err, ErrNotPending)
	_, err = f.svc.ReissueCode(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.svc.Cancel(ctx, appt.ID, ActorStaff)
	assert.ErrorIs(t, err, ErrInvalidState)

	f.clock.Advance(time.Hour)
	_, err = f.svc.ExpireStale(ctx)
	require.NoError(t, err)

	stored, err := f.svc.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
	assert.Equal(t, done.Version, stored.Version)
	assert.Len(t, f.repo.Events(), events, "rejected calls write nothing")
}

// racingRepository lets another writer land a transition right before the
// first SaveTransition of the wrapped call.
type racingRepository struct {
	*MemoryRepository
	once   sync.Once
	racing func(*MemoryRepository, *Appointment)
}

func (r *racingRepository) SaveTransition(ctx context.Context, appt *Appointment) (*Appointment, error) {
	r.once.Do(func() { r.racing(r.MemoryRepository, appt) })
	return r.MemoryRepository.SaveTransition(ctx, appt)
}

func TestVerifyLosesRaceToCancel(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	appt := f.reserve(t, firstSlot)

	racer := &racingRepository{
		MemoryRepository: f.repo,
		racing: func(repo *MemoryRepository, pending *Appointment) {
			winner, err := repo.GetAppointmentByID(ctx, pending.ID)
			require.NoError(t, err)
			winner.Status = StatusCancelled
			winner.clearCode()
			_, err = repo.SaveTransition(ctx, winner)
			require.NoError(t, err)
		},
	}
	f.svc.repo = racer

	_, err := f.svc.Verify(ctx, appt.ID, *appt.Code)
	assert.ErrorIs(t, err, ErrNotPending, "loser re-reads and sees the cancellation")

	status, err := f.svc.GetStatus(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, status)
}

// stuckRepository always loses the compare-and-set.
type stuckRepository struct {
	*MemoryRepository
}

func (stuckRepository) SaveTransition(context.Context, *Appointment) (*Appointment, error) {
	return nil, ErrStaleVersion
}

func TestMutateGivesUpAfterRepeatedConflicts(t *testing.T) {
	f := newFixture(t, nil)
	appt := f.reserve(t, firstSlot)
	f.svc.repo = stuckRepository{f.repo}

	_, err := f.svc.Cancel(context.Background(), appt.ID, ActorPatient)
	assert.ErrorIs(t, err, ErrConcurrentUpdate)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestConcurrentVerifyAndCancelAgree(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		appt := f.reserve(t, firstSlot)

		var wg sync.WaitGroup
		var verifyErr, cancelErr error
		wg.Add(2)
		go func() { defer wg.Done(); _, verifyErr = f.svc.Verify(ctx, appt.ID, *appt.Code) }()
		go func() { defer wg.Done(); _, cancelErr = f.svc.Cancel(ctx, appt.ID, ActorPatient) }()
		wg.Wait()

		require.NoError(t, cancelErr)
		status, err := f.svc.GetStatus(ctx, appt.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, status)
		if verifyErr != nil {
			assert.ErrorIs(t, verifyErr, ErrNotPending)
		}
	}
}
