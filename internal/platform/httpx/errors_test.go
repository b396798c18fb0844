package httpx_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cascade/internal/platform/httpx"
	"github.com/odyssey-erp/cascade/internal/shared"
)

func TestFailMapsLostRaceToConflict(t *testing.T) {
	raced := fmt.Errorf("%w: %w", shared.ErrVersionConflict, errors.New("could not serialize access due to concurrent update"))

	rr := httptest.NewRecorder()
	httpx.Fail(rr, nil, "confirm sales order", fmt.Errorf("confirm: %w", raced))
	require.Equal(t, http.StatusConflict, rr.Code)
	var problem struct {
		Title  string `json:"title"`
		Status int    `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Equal(t, "Version Conflict", problem.Title)
	require.Equal(t, http.StatusConflict, problem.Status)

	rr = httptest.NewRecorder()
	httpx.Fail(rr, nil, "confirm sales order", errors.New("connection reset"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Contains(t, rr.Body.String(), "failed to confirm sales order")
}
