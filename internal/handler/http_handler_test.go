package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegisterRoutesCoversDraftLifecycle(t *testing.T) {
	mux := http.NewServeMux()
	NewHTTPHandler(nil, nil).RegisterRoutes(mux)

	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodPost, "/api/v1/inspections/insp-1/auto_save/", "POST /api/v1/inspections/{id}/auto_save/"},
		{http.MethodDelete, "/api/v1/inspections/insp-1/auto_save/", "DELETE /api/v1/inspections/{id}/auto_save/"},
	}
	for _, tt := range tests {
		_, pattern := mux.Handler(httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, tt.want, pattern)
	}
}
