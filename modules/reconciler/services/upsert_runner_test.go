package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/modules/reconciler/domain"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/pkg/retry"
)

type violationRecorder struct {
	logged []domain.ConstraintViolation
}

func (r *violationRecorder) Log(_ context.Context, v domain.ConstraintViolation) error {
	r.logged = append(r.logged, v)
	return nil
}

func fastPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.BaseDelay = time.Millisecond
	return p
}

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505", ConstraintName: "organization_normalized_name_key"}
}

func TestUpsertRunner_SucceedsFirstAttempt(t *testing.T) {
	runner := newUpsertRunner(fastPolicy(), &violationRecorder{}, testLog())

	calls := 0
	err := runner.run(context.Background(), "organization", nil, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestUpsertRunner_RetriesTransientThenSucceeds(t *testing.T) {
	runner := newUpsertRunner(fastPolicy(), &violationRecorder{}, testLog())

	calls := 0
	err := runner.run(context.Background(), "organization", nil, func(context.Context) error {
		calls++
		if calls < 3 {
			return uniqueViolation()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestUpsertRunner_ExhaustionWrapsAndEscalates(t *testing.T) {
	runner := newUpsertRunner(fastPolicy(), &violationRecorder{}, testLog())

	calls := 0
	err := runner.run(context.Background(), "organization", map[string]any{"name": "dup"}, func(context.Context) error {
		calls++
		return uniqueViolation()
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRetriesExhausted))
	assert.Equal(t, 3, calls)
}

func TestUpsertRunner_NonTransientNotRetried(t *testing.T) {
	runner := newUpsertRunner(fastPolicy(), &violationRecorder{}, testLog())

	boom := errors.New("boom")
	calls := 0
	err := runner.run(context.Background(), "organization", nil, func(context.Context) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, ErrRetriesExhausted))
	assert.Equal(t, 1, calls)
}

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Hope Pantry", "hope pantry"},
		{"  HOPE   PANTRY  ", "hope pantry"},
		{"Hope\tPantry\n", "hope pantry"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeName(tc.in), "input %q", tc.in)
	}
}
