package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portlight/portlight/internal/database"
)

func openTestDB(t *testing.T, name string, profile database.Profile) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestSystemHandlers(t *testing.T) *SystemHandlers {
	t.Helper()
	market := openTestDB(t, "market", database.ProfileLedger)
	analytics := openTestDB(t, "analytics", database.ProfileStandard)
	return NewSystemHandlers(zerolog.Nop(), market, analytics)
}

func TestHandleHealth(t *testing.T) {
	h := newTestSystemHandlers(t)

	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Databases["market"])
	assert.Equal(t, "ok", resp.Databases["analytics"])
}

func TestHandleHealthDeep(t *testing.T) {
	h := newTestSystemHandlers(t)

	rec := httptest.NewRecorder()
	h.HandleHealthDeep(rec, httptest.NewRequest(http.MethodGet, "/health/deep", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Len(t, resp.Databases, 2)
}
