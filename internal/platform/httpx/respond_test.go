package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err   error
		code  int
		title string
	}{
		{fmt.Errorf("%w: no ledger row for 2024-01", ErrNotFound), http.StatusNotFound, "Not Found"},
		{fmt.Errorf("%w: bad kind", ErrValidation), http.StatusBadRequest, "Validation Failed"},
		{ErrConflict, http.StatusConflict, "Conflict"},
		{errors.New("unexpected"), http.StatusInternalServerError, "Internal Error"},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.code, rr.Code)
		require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Equal(t, tc.title, body.Title)
		require.Equal(t, tc.code, body.Status)
	}
}

func TestWrapUnavailableHidesCause(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.5:5432: connection refused")
	err := Wrap(ErrUnavailable, cause)
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, cause)
	require.Nil(t, Wrap(ErrUnavailable, nil))

	rr := httptest.NewRecorder()
	RespondError(rr, err)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Equal(t, "30", rr.Header().Get("Retry-After"))
	require.NotContains(t, rr.Body.String(), "10.0.0.5")
}
