package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/volunteer-hub-go/models"
)

var (
	admin = primitive.NewObjectID()
	now   = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
)

func TestReview(t *testing.T) {
	tests := []struct {
		name     string
		current  string
		decision string
		reason   string
		wantTo   string
		wantErr  error
	}{
		{"approve pending", models.StatusPending, DecisionApprove, "", models.StatusApproved, nil},
		{"approve rejected", models.StatusRejected, DecisionApprove, "", models.StatusApproved, nil},
		{"approve approved", models.StatusApproved, DecisionApprove, "", "", ErrInvalidTransition},
		{"reject pending", models.StatusPending, DecisionReject, "spam", models.StatusRejected, nil},
		{"reject approved", models.StatusApproved, DecisionReject, "outdated", models.StatusRejected, nil},
		{"reject without reason", models.StatusPending, DecisionReject, "", "", ErrReasonRequired},
		{"reject rejected", models.StatusRejected, DecisionReject, "again", "", ErrInvalidTransition},
		{"unknown decision", models.StatusPending, "maybe", "", "", ErrInvalidTransition},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ch, err := Review(tc.current, tc.decision, tc.reason, admin, now)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantTo, ch.To)
			assert.Equal(t, []string{tc.current}, ch.From)
			assert.Equal(t, tc.current, ch.Entry.FromStatus)
			assert.Equal(t, tc.wantTo, ch.Entry.ToStatus)
			assert.Equal(t, admin, ch.Entry.By)
			assert.Equal(t, now, ch.Entry.At)
			// visible only when approved
			assert.Equal(t, tc.wantTo == models.StatusApproved, ch.Set["is_visible"])
		})
	}
}

func TestResubmit(t *testing.T) {
	ch, err := Resubmit(models.StatusRejected, admin, now)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, ch.To)
	assert.Equal(t, models.ActionResubmitted, ch.Entry.Action)

	_, err = Resubmit(models.StatusPending, admin, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSetVisibility(t *testing.T) {
	_, err := SetVisibility(models.StatusPending, false, true, admin, now)
	assert.ErrorIs(t, err, ErrVisibility)

	_, err = SetVisibility(models.StatusApproved, true, true, admin, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	ch, err := SetVisibility(models.StatusApproved, true, false, admin, now)
	require.NoError(t, err)
	assert.Equal(t, models.ActionHidden, ch.Entry.Action)
	assert.Equal(t, models.StatusApproved, ch.To)
	assert.Equal(t, false, ch.Set["is_visible"])

	ch, err = SetVisibility(models.StatusApproved, false, true, admin, now)
	require.NoError(t, err)
	assert.Equal(t, models.ActionShown, ch.Entry.Action)

	// hiding works in any status
	ch, err = SetVisibility(models.StatusRejected, true, false, admin, now)
	require.NoError(t, err)
	assert.Equal(t, false, ch.Set["is_visible"])
}

func TestApplicationDecisions(t *testing.T) {
	ch, err := DecideApplication(models.ApplicationPending, DecisionAccept, "welcome", admin, now)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationAccepted, ch.To)
	assert.Equal(t, "welcome", ch.Entry.Note)

	_, err = DecideApplication(models.ApplicationAccepted, DecisionAccept, "", admin, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	ch, err = DecideApplication(models.ApplicationAccepted, DecisionReject, "", admin, now)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationRejected, ch.To)

	_, err = DecideApplication(models.ApplicationWithdrawn, DecisionReject, "", admin, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	ch, err = Withdraw(models.ApplicationAccepted, admin, now)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationWithdrawn, ch.To)

	_, err = Withdraw(models.ApplicationRejected, admin, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRegistrations(t *testing.T) {
	assert.Equal(t, models.ActionWaitlisted, Registered(models.RegistrationWaitlisted, admin, now).Action)
	assert.Equal(t, models.ActionRegistered, Registered(models.RegistrationRegistered, admin, now).Action)

	_, err := CancelRegistration(models.RegistrationCancelled, admin, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	ch, err := CancelRegistration(models.RegistrationWaitlisted, admin, now)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationCancelled, ch.To)

	p := Promote(admin, now)
	assert.Equal(t, []string{models.RegistrationWaitlisted}, p.From)
	assert.Equal(t, models.ActionPromoted, p.Entry.Action)
}
