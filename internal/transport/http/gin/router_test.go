package httpgin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkgate/parkgate/internal/domain"
	"github.com/parkgate/parkgate/internal/repository/memory"
	"github.com/parkgate/parkgate/internal/service"
)

func newTestRouter(t *testing.T) (*gin.Engine, *memory.Store, int64) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	ctx := context.Background()

	fid, err := store.Facilities().Create(ctx, &domain.Facility{
		Name:       "Central",
		HourlyRate: 150,
	})
	require.NoError(t, err)

	_, err = store.Facilities().InitSpots(ctx, fid, 2, "A", domain.SpotRegular)
	require.NoError(t, err)

	svcs := service.NewServices(store, nil, nil, nil, service.Config{})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewRouter(svcs, nil, logger), store, fid
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

func TestEntryExitRoundTrip(t *testing.T) {
	r, _, fid := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/sessions/entry", EntryRequest{
		FacilityID: fid,
		Plate:      "cab 1234",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var entry EntryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.Equal(t, "A-01", entry.SpotName)
	// unregistered plate is admitted but held for manual approval
	assert.Equal(t, "pending", entry.GateAction)
	assert.False(t, entry.IsRegistered)
	assert.Equal(t, "walk_in", entry.SessionType)

	// duplicate entry denied
	w = doJSON(t, r, http.MethodPost, "/sessions/entry", EntryRequest{
		FacilityID: fid,
		Plate:      "CAB-1234",
	})
	require.Equal(t, http.StatusConflict, w.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, "deny", errResp.GateAction)

	w = doJSON(t, r, http.MethodPost, "/sessions/exit", ExitRequest{Plate: "CAB-1234"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var exit ExitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exit))
	assert.Equal(t, "open", exit.GateAction)
	// unregistered plate owes the minimum hour as pending
	assert.Equal(t, int64(150), exit.Fee)
	assert.Equal(t, "pending", exit.PaymentStatus)

	// second exit: nothing open
	w = doJSON(t, r, http.MethodPost, "/sessions/exit", ExitRequest{Plate: "CAB-1234"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEntryValidation(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/sessions/entry", map[string]any{"plate": "CAB-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOccupancyEndpoint(t *testing.T) {
	r, _, fid := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/sessions/entry", EntryRequest{FacilityID: fid, Plate: "CAB-1"})
	require.Equal(t, http.StatusCreated, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/facilities/1/occupancy", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var oc domain.Occupancy
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &oc))
	assert.Equal(t, 2, oc.Total)
	assert.Equal(t, 1, oc.Occupied)
	assert.Equal(t, 1, oc.Available)
	assert.NotEmpty(t, rec.Header().Get("ETag"))
}

func TestWalletEndpoints(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/wallets/42/topup", TopUpRequest{Amount: 1000})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var wallet WalletResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wallet))
	assert.Equal(t, int64(1000), wallet.Balance)

	req := httptest.NewRequest(http.MethodGet, "/wallets/42", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/wallets/99", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReservationWindowValidation(t *testing.T) {
	r, store, fid := newTestRouter(t)

	vid, err := store.Vehicles().Register(context.Background(), &domain.Vehicle{
		AccountID: 42, Plate: "CAB-1",
	})
	require.NoError(t, err)

	w := doJSON(t, r, http.MethodPost, "/reservations", CreateReservationRequest{
		VehicleID:  vid,
		FacilityID: fid,
		Start:      "2020-01-01T10:00:00Z",
		End:        "2020-01-01T09:00:00Z",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/reservations", CreateReservationRequest{
		VehicleID:  vid,
		FacilityID: fid,
		Start:      "not-a-time",
		End:        "2020-01-01T09:00:00Z",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
