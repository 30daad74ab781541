package agent_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrej220/NTC/internal/agent"
	"github.com/andrej220/NTC/internal/lg"
)

// newTestClient points an HTTPClient at the test server by rebuilding it
// from the server's host and port.
func newTestClient(t *testing.T, handler http.Handler) (*agent.HTTPClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return agent.NewHTTPClientAddr(u.Hostname(), mustPort(t, u.Port()), lg.Discard), srv
}

func mustPort(t *testing.T, s string) int {
	t.Helper()
	p, err := strconv.Atoi(s)
	require.NoError(t, err)
	return p
}

func TestRetrySyncDiscoveryStopsAfterBudget(t *testing.T) {
	var hits atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	}))

	err := client.RetrySyncDiscovery(context.Background(), time.Millisecond, 6)
	assert.ErrorIs(t, err, agent.ErrDiscoveryExhausted)
	assert.Equal(t, int32(6), hits.Load(), "exactly six attempts, never fewer, never unbounded")
}

func TestRetrySyncDiscoveryRecovers(t *testing.T) {
	var hits atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	err := client.RetrySyncDiscovery(context.Background(), time.Millisecond, 6)
	assert.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestGetAllDevices(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/devices", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"devices": []map[string]string{
				{"id": "d0", "type": "bmc", "name": "bmc0"},
				{"id": "d1", "type": "spi", "name": "flash0"},
			},
		})
	}))

	devices, err := client.GetAllDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "bmc", devices[0].Type)
}

func TestGetAllDevicesTransportError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := client.GetAllDevices(context.Background())
	var terr *agent.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "device enumeration", terr.Op)
}

func TestUpdateFirmwareReturnsRawBody(t *testing.T) {
	const body = `{"result":[{"atomic_test_data":{"secure_firmware_update":"Issue warm reset NOW!"}},{}]}`

	var got struct {
		Name string `json:"name"`
		Mode string `json:"mode"`
		Path string `json:"path"`
	}
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/firmware/spi", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(body))
	}))

	raw, err := client.UpdateFirmware(context.Background(), "spi", "bios.rom", "3", "/uploads")
	require.NoError(t, err)
	assert.Equal(t, body, string(raw))
	assert.Equal(t, "bios.rom", got.Name)
	assert.Equal(t, "3", got.Mode)
	assert.Equal(t, "/uploads", got.Path)
}

func TestResetsHitTheirEndpoints(t *testing.T) {
	var paths []string
	var bodies []string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		bodies = append(bodies, string(body))
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, client.BMCReset(context.Background(), false))
	require.NoError(t, client.WarmReset(context.Background(), false))

	assert.Equal(t, []string{"/api/bmc/reset", "/api/reset/warm"}, paths)
	for _, b := range bodies {
		assert.JSONEq(t, `{"powerCycle":false}`, b)
	}
}
