package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"lms_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPageQuery(t *testing.T) {
	tests := []struct {
		page, limit         int
		wantPage, wantLimit int
	}{
		{0, 0, 1, 10},
		{-3, 5, 1, 5},
		{2, 500, 2, 100},
		{4, 25, 4, 25},
	}
	for _, tt := range tests {
		q := NewPageQuery(tt.page, tt.limit)
		assert.Equal(t, tt.wantPage, q.Page)
		assert.Equal(t, tt.wantLimit, q.Limit)
	}

	q := NewPageQuery(3, 10)
	assert.Equal(t, 20, q.Offset())
	p := q.Result(21)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, int64(21), p.Total)
	assert.Equal(t, 0, NewPageQuery(1, 10).Result(0).TotalPages)
}

func TestAppError(t *testing.T) {
	err := fmt.Errorf("wrap: %w", Conflictf("already enrolled in course %d", 7))
	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, http.StatusConflict, KindOf(err).HTTPStatus())
	assert.Equal(t, ErrorKind(0), KindOf(errors.New("boom")))
	assert.Equal(t, http.StatusInternalServerError, ErrorKind(0).HTTPStatus())

	details := BadRequestf("missing").WithDetails([]string{"Basics"})
	assert.Equal(t, []string{"Basics"}, details.Details)
}

func TestJWTRoundTrip(t *testing.T) {
	caller := model.Caller{UserID: 9, Role: model.Instructor, OrganizationID: 3}
	tok, err := GenerateJWT(caller, "secret", time.Minute)
	require.NoError(t, err)

	claims, err := ParseJWT(tok, "secret")
	require.NoError(t, err)
	assert.Equal(t, caller, claims.Caller())

	_, err = ParseJWT(tok, "other")
	assert.Error(t, err)

	expired, err := GenerateJWT(caller, "secret", -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(expired, "secret")
	assert.Error(t, err)
}

func TestParseHelpers(t *testing.T) {
	id, err := ParseID("42")
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
	for _, bad := range []string{"", "0", "-1", "x"} {
		_, err := ParseID(bad)
		assert.ErrorIs(t, err, ErrBadRequest, bad)
	}

	d, err := ParseOptionalDate("")
	require.NoError(t, err)
	assert.Nil(t, d)
	d, err = ParseOptionalDate("2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 2026, d.Year())
	_, err = ParseOptionalDate("01/03/2026")
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestValidateAttachmentName(t *testing.T) {
	assert.NoError(t, ValidateAttachmentName("report.PDF", "application/pdf"))
	assert.ErrorIs(t, ValidateAttachmentName("", ""), ErrBadRequest)
	assert.ErrorIs(t, ValidateAttachmentName("../etc/passwd.txt", ""), ErrBadRequest)
	assert.ErrorIs(t, ValidateAttachmentName("virus.exe", ""), ErrBadRequest)
}
