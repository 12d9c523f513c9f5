package persistence

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsTransientConstraint(t *testing.T) {
	for _, code := range []string{"23505", "23503", "40001", "40P01"} {
		err := &pgconn.PgError{Code: code}
		assert.True(t, IsTransientConstraint(err), "code %s", code)
	}

	assert.False(t, IsTransientConstraint(&pgconn.PgError{Code: "23502"}))
	assert.False(t, IsTransientConstraint(errors.New("plain error")))
	assert.False(t, IsTransientConstraint(nil))
}

func TestIsTransientConstraint_Wrapped(t *testing.T) {
	err := fmt.Errorf("upsert organization: %w", &pgconn.PgError{Code: "23505"})
	assert.True(t, IsTransientConstraint(err))
}

func TestConstraintName(t *testing.T) {
	err := &pgconn.PgError{Code: "23505", ConstraintName: "organization_normalized_name_key"}
	assert.Equal(t, "organization_normalized_name_key", ConstraintName(err))
	assert.Equal(t, "", ConstraintName(errors.New("plain error")))
}

func TestCoordinateBucketKey(t *testing.T) {
	assert.Equal(t, "location:40.7128:-74.0060", CoordinateBucketKey(40.7128, -74.006))

	// Coordinates inside the same ten-thousandth of a degree share a bucket.
	assert.Equal(t,
		CoordinateBucketKey(40.71280, -74.00600),
		CoordinateBucketKey(40.71281, -74.00601),
	)
	assert.NotEqual(t,
		CoordinateBucketKey(40.7128, -74.0060),
		CoordinateBucketKey(40.7129, -74.0060),
	)
}
