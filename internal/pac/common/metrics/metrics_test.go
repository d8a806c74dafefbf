package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_Idempotent(t *testing.T) {
	require.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestHandler_ExposesCollectors(t *testing.T) {
	RegistryRefreshTotal.WithLabelValues("success").Inc()
	BlockedDomains.Set(3)

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, "pacd_registry_refresh_total"))
	assert.True(t, strings.Contains(body, "pacd_blocked_domains 3"))
}
