package reminders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/goleak"

	models "github.com/phillip/volunteer-hub-go/models"
	store "github.com/phillip/volunteer-hub-go/store"
	utils "github.com/phillip/volunteer-hub-go/utils"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// flakyMailer fails for the listed recipients.
type flakyMailer struct {
	mu   sync.Mutex
	fail map[string]bool
	sent []utils.Message
}

func (f *flakyMailer) Send(_ context.Context, msg utils.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[msg.To] {
		return errors.New("smtp down")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *flakyMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

var base = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *store.Store, email string, due time.Time) primitive.ObjectID {
	t.Helper()
	r := &models.Reminder{
		ID:         primitive.NewObjectID(),
		UserID:     primitive.NewObjectID(),
		Email:      email,
		Subject:    "Reminder",
		Message:    "Your event starts tomorrow",
		TargetType: models.TargetEvent,
		TargetID:   primitive.NewObjectID(),
		DueAt:      due,
		CreatedAt:  base,
		UpdatedAt:  base,
	}
	require.NoError(t, s.Reminders.Create(context.Background(), r))
	return r.ID
}

func newScheduler(s *store.Store, m utils.Mailer) *Scheduler {
	return &Scheduler{
		Reminders:   s.Reminders,
		Mailer:      m,
		Log:         zerolog.Nop(),
		Interval:    10 * time.Millisecond,
		BatchSize:   10,
		MaxAttempts: 2,
		FrontendURL: "https://hub.org",
		now:         func() time.Time { return base },
	}
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	mailer := &flakyMailer{fail: map[string]bool{"bad@x.org": true}}
	sch := newScheduler(s, mailer)

	ok := seed(t, s, "ok@x.org", base.Add(-time.Hour))
	bad := seed(t, s, "bad@x.org", base.Add(-time.Hour))
	future := seed(t, s, "later@x.org", base.Add(time.Hour))

	res, err := sch.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Sent: 1, Failed: 1}, res)

	got, err := s.Reminders.Get(ctx, ok)
	require.NoError(t, err)
	assert.True(t, got.Sent)
	require.NotNil(t, got.SentAt)
	assert.Equal(t, 1, got.Attempts)

	got, err = s.Reminders.Get(ctx, bad)
	require.NoError(t, err)
	assert.False(t, got.Sent)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "smtp down", got.LastError)

	got, err = s.Reminders.Get(ctx, future)
	require.NoError(t, err)
	assert.Zero(t, got.Attempts)

	// second pass retries the failure once more, then it is exhausted
	res, err = sch.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Failed: 1}, res)

	res, err = sch.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)

	assert.Equal(t, 1, mailer.count())
	assert.Contains(t, mailer.sent[0].HTML, "https://hub.org/events/")
}

func TestRunOnceBatchSize(t *testing.T) {
	s := store.NewMemory()
	mailer := &flakyMailer{}
	sch := newScheduler(s, mailer)
	sch.BatchSize = 2
	for i := 0; i < 5; i++ {
		seed(t, s, "v@x.org", base.Add(-time.Duration(i)*time.Minute))
	}

	res, err := sch.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
}

func TestRunStopsOnCancel(t *testing.T) {
	s := store.NewMemory()
	mailer := &flakyMailer{}
	sch := newScheduler(s, mailer)
	seed(t, s, "v@x.org", base.Add(-time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sch.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return mailer.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

type slowMailer struct {
	flakyMailer
	delay time.Duration
}

func (m *slowMailer) Send(ctx context.Context, msg utils.Message) error {
	time.Sleep(m.delay)
	return m.flakyMailer.Send(ctx, msg)
}

func TestConcurrentPassesSendOnce(t *testing.T) {
	s := store.NewMemory()
	mailer := &slowMailer{delay: 50 * time.Millisecond}
	seed(t, s, "v@x.org", base.Add(-time.Minute))

	var wg sync.WaitGroup
	results := make([]Result, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := newScheduler(s, mailer).RunOnce(context.Background())
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, mailer.count())
	assert.Equal(t, 1, results[0].Sent+results[1].Sent)
}

func TestClaimedReminderIsSkippedUntilLeaseEnds(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	mailer := &flakyMailer{}
	id := seed(t, s, "v@x.org", base.Add(-time.Minute))

	// a pass that died after claiming
	require.NoError(t, s.Reminders.Claim(ctx, id, 0, base, base.Add(lease)))
	assert.ErrorIs(t, s.Reminders.Claim(ctx, id, 0, base, base.Add(lease)), store.ErrNotFound)

	sch := newScheduler(s, mailer)
	res, err := sch.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)

	sch.now = func() time.Time { return base.Add(lease + time.Second) }
	res, err = sch.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Sent: 1}, res)

	got, err := s.Reminders.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
}
