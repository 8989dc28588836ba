package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewtec/maskbatch/internal/domain"
)

func TestNormalize(t *testing.T) {
	cases := map[string]domain.ImageStatus{
		"in_progress_auto":   domain.ImageInProgress,
		"in_progress_manual": domain.ImageInProgress,
		"completed":          domain.ImageApproved,
		"unprocessed":        domain.ImageUnprocessed,
		"approved":           domain.ImageApproved,
		"skip":               domain.ImageSkip,
		"garbage":            domain.ImageUnprocessed,
		"":                   domain.ImageUnprocessed,
	}
	for raw, want := range cases {
		assert.Equal(t, want, Normalize(raw), "raw=%q", raw)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, raw := range []string{"in_progress_auto", "completed", "rejected"} {
		once := Normalize(raw)
		assert.Equal(t, once, Normalize(string(once)))
	}
}

func TestOnLayerMutationDowngradesFromAnyNonSkipState(t *testing.T) {
	from := []domain.ImageStatus{
		domain.ImageUnprocessed,
		domain.ImageInProgress,
		domain.ImageReadyForReview,
		domain.ImageApproved,
		domain.ImageRejected,
	}
	for _, s := range from {
		assert.Equal(t, domain.ImageInProgress, OnLayerMutation(s, 1), "from %s with layers", s)
		assert.Equal(t, domain.ImageUnprocessed, OnLayerMutation(s, 0), "from %s without layers", s)
	}
}

func TestOnLayerMutationSkipIsSticky(t *testing.T) {
	assert.Equal(t, domain.ImageSkip, OnLayerMutation(domain.ImageSkip, 0))
	assert.Equal(t, domain.ImageSkip, OnLayerMutation(domain.ImageSkip, 3))
}

func TestSkipOverridesAndUnskipRestores(t *testing.T) {
	s, err := Apply(domain.ImageInProgress, ActionSkip, 2)
	require.NoError(t, err)
	require.Equal(t, domain.ImageSkip, s)

	restored, err := Apply(s, ActionUnskip, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.ImageInProgress, restored)

	s, err = Apply(domain.ImageUnprocessed, ActionSkip, 0)
	require.NoError(t, err)
	restored, err = Apply(s, ActionUnskip, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.ImageUnprocessed, restored)
}

func TestReviewTransitions(t *testing.T) {
	t.Run("mark ready only from in_progress", func(t *testing.T) {
		s, err := Apply(domain.ImageInProgress, ActionMarkReady, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.ImageReadyForReview, s)

		for _, from := range []domain.ImageStatus{
			domain.ImageUnprocessed, domain.ImageApproved, domain.ImageRejected, domain.ImageSkip,
		} {
			got, err := Apply(from, ActionMarkReady, 1)
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)
			assert.Equal(t, from, got, "state must not change on refusal")
		}
	})

	t.Run("approve and reject only from ready_for_review", func(t *testing.T) {
		s, err := Apply(domain.ImageReadyForReview, ActionApprove, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.ImageApproved, s)

		s, err = Apply(domain.ImageReadyForReview, ActionReject, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.ImageRejected, s)

		_, err = Apply(domain.ImageUnprocessed, ActionApprove, 0)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})
}

func TestRejectionCycle(t *testing.T) {
	// ready_for_review -> rejected -> layer edit puts it back to in_progress.
	s, err := Apply(domain.ImageReadyForReview, ActionReject, 2)
	require.NoError(t, err)
	require.Equal(t, domain.ImageRejected, s)

	assert.Equal(t, domain.ImageInProgress, OnLayerMutation(s, 2))
}

func TestUnskipRequiresSkip(t *testing.T) {
	_, err := Apply(domain.ImageInProgress, ActionUnskip, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}
