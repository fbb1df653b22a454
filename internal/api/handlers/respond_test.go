package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fundfolio/backend/internal/contracts"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", contracts.InvalidInput("weight", "must be > 0"), http.StatusBadRequest},
		{"not found", contracts.NotFound("batch", 3), http.StatusNotFound},
		{"conflict", contracts.Conflict("portfolio:1", errors.New("timeout")), http.StatusConflict},
		{"mismatch", contracts.Mismatch("order already executed"), http.StatusConflict},
		{"transition", contracts.InvalidTransition("orders pending"), http.StatusConflict},
		{"unavailable", contracts.Unavailable("A", "no price"), http.StatusUnprocessableEntity},
		{"wrapped", fmt.Errorf("outer: %w", contracts.NotFound("order", 1)), http.StatusNotFound},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"plain", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Persist bool `json:"persist"`
	}

	tests := []struct {
		name          string
		payload       string
		contentLength int64
		want          body
		wantErr       bool
	}{
		{"empty", "", 0, body{}, false},
		{"empty chunked", "", -1, body{}, false},
		{"chunked value", `{"persist":true}`, -1, body{Persist: true}, false},
		{"unknown field", `{"persist":true,"extra":1}`, -1, body{}, true},
		{"truncated", `{"persist":`, -1, body{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/rebalance/plans", strings.NewReader(tt.payload))
			req.ContentLength = tt.contentLength

			var got body
			err := decodeJSON(req, &got)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, contracts.IsKind(err, contracts.KindInputValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
