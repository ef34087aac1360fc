package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-signup-session/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDomainError_Status(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&domain.ValidationError{Field: "email", Rule: "email"}, http.StatusBadRequest},
		{fmt.Errorf("taken: %w", domain.ErrConflict), http.StatusConflict},
		{fmt.Errorf("gone: %w", domain.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("late: %w", domain.ErrExpired), http.StatusGone},
		{fmt.Errorf("locked: %w", domain.ErrRateLimited), http.StatusTooManyRequests},
		{fmt.Errorf("down: %w", domain.ErrUpstream), http.StatusBadGateway},
		{fmt.Errorf("no: %w", domain.ErrUnauthorized), http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		rr := httptest.NewRecorder()
		writeDomainError(rr, c.err)
		assert.Equal(t, c.want, rr.Code, c.err.Error())
	}
}

func TestWriteDomainError_MismatchCarriesAttemptsLeft(t *testing.T) {
	rr := httptest.NewRecorder()
	writeDomainError(rr, &domain.MismatchError{AttemptsLeft: 0})

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.EqualValues(t, 0, body["attempts_left"])
}

func TestWriteDomainError_ValidationCarriesRule(t *testing.T) {
	rr := httptest.NewRecorder()
	writeDomainError(rr, &domain.ValidationError{Field: "password", Rule: "min=8"})

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var body MessageEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "password", body.Field)
	assert.Equal(t, "min=8", body.Rule)
}

func TestWriteDomainError_HidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	writeDomainError(rr, errors.New("dynamodb: table users throttled"))
	assert.NotContains(t, rr.Body.String(), "dynamodb")
}
