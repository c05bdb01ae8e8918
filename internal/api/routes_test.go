package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dojo-stack/server/internal/cache"
	"github.com/dojo-stack/server/internal/pyramid"
	"github.com/dojo-stack/server/internal/render"
	"github.com/dojo-stack/server/internal/service"
)

// testServer holds the test server and its dependencies
type testServer struct {
	server *httptest.Server
	cache  *cache.Manager
	stack  *service.StackService
}

// setupTestServer wires a two-channel stack over an 8192px pyramid
func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	geometry, err := pyramid.NewGeometry(8192, 8192, 512, "localhost:2001", "/data/mojo")
	if err != nil {
		t.Fatalf("Failed to build geometry: %v", err)
	}

	cacheManager, err := cache.NewManager(cache.Config{
		TileCacheSizeMB:  4,
		TileTTL:          time.Minute,
		AddressCacheSize: 64,
	})
	if err != nil {
		t.Fatalf("Failed to initialize cache: %v", err)
	}

	stackService, err := service.NewStackService(service.StackServiceConfig{
		Geometry: geometry,
		Channels: "is",
	})
	if err != nil {
		t.Fatalf("Failed to initialize stack service: %v", err)
	}

	addressService := service.NewAddressService(service.AddressServiceConfig{
		Layers:   stackService.Layers(),
		Cache:    cacheManager,
		Renderer: render.NewTileRenderer(render.Config{TileSize: 64, Levels: geometry.MaxLevel() + 1}),
	})

	router := NewRouter(RouterConfig{
		Stack:       stackService,
		Addresses:   addressService,
		CORSOrigins: []string{"http://localhost:3000"},
	})

	return &testServer{
		server: httptest.NewServer(router),
		cache:  cacheManager,
		stack:  stackService,
	}
}

// close cleans up test server resources
func (ts *testServer) close() {
	ts.server.Close()
	ts.cache.Close()
}

func (ts *testServer) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(ts.server.URL + path)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	return resp, body
}

func (ts *testServer) post(t *testing.T, path string, payload interface{}) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			t.Fatalf("Failed to encode payload: %v", err)
		}
	}
	resp, err := http.Post(ts.server.URL+path, "application/json", &buf)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	return resp, body
}

// --- Helper Functions ---

// assertStatusCode verifies the HTTP status code
func assertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// assertContentType verifies the Content-Type header
func assertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected Content-Type %q, got %q", expected, contentType)
	}
}

// assertPNG verifies the response body is a valid PNG image
func assertPNG(t *testing.T, body []byte) {
	t.Helper()
	pngMagic := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	if len(body) < 8 {
		t.Errorf("Response too short to be a valid PNG (got %d bytes)", len(body))
		return
	}
	if !bytes.Equal(body[:8], pngMagic) {
		t.Errorf("Invalid PNG magic bytes: % X", body[:8])
	}
}

func decodeSnapshot(t *testing.T, body []byte) service.Snapshot {
	t.Helper()
	var snap service.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("Failed to parse snapshot: %v", err)
	}
	return snap
}

// --- Test Cases ---

func TestHealthEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.close()

	resp, body := ts.get(t, "/health")
	assertStatusCode(t, resp, http.StatusOK)
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %q", string(body))
	}
}

func TestLayersEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.close()

	resp, body := ts.get(t, "/api/layers")
	assertStatusCode(t, resp, http.StatusOK)
	assertContentType(t, resp, "application/json")

	var result struct {
		Layers []layerInfo `json:"layers"`
		Total  int         `json:"total"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to parse JSON response: %v", err)
	}
	if result.Total != 3 {
		t.Fatalf("Expected 3 layers, got %d", result.Total)
	}

	wantKinds := []string{"intensity", "segmentation", "placeholder"}
	for i, l := range result.Layers {
		if l.Kind != wantKinds[i] {
			t.Errorf("layer %d: expected kind %q, got %q", i, wantKinds[i], l.Kind)
		}
		if l.MaxLevel != 4 {
			t.Errorf("layer %d: expected max level 4, got %d", i, l.MaxLevel)
		}
	}
	if !result.Layers[2].Target || !result.Layers[2].Placeholder {
		t.Errorf("expected trailing placeholder target, got %+v", result.Layers[2])
	}
}

func TestAddressEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.close()

	tests := []struct {
		name           string
		path           string
		expectedStatus int
		expectAddress  string
	}{
		{
			name:           "intensity level 0",
			path:           "/api/address?layer=0&level=0&x=0&y=0&z=0",
			expectedStatus: http.StatusOK,
			expectAddress:  "http://localhost:2001/data/?datapath=/data/mojo&start=0,0,0&mip=4&size=512,512,1",
		},
		{
			name:           "segmentation tile",
			path:           "/api/address?layer=1&level=1&x=1&y=0&z=2",
			expectedStatus: http.StatusOK,
			expectAddress:  "http://localhost:2001/data/?datapath=/data/mojo&start=1024,0,2&mip=3&size=1024,1024,1&segmentation=y&segcolor=y",
		},
		{
			name:           "placeholder layer",
			path:           "/api/address?layer=2",
			expectedStatus: http.StatusOK,
			expectAddress:  "http://localhost:2001/placeholder.png",
		},
		{
			name:           "invalid level",
			path:           "/api/address?layer=0&level=abc",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "layer out of range",
			path:           "/api/address?layer=7",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ts.get(t, tt.path)
			assertStatusCode(t, resp, tt.expectedStatus)
			if tt.expectAddress == "" {
				return
			}
			var result map[string]interface{}
			if err := json.Unmarshal(body, &result); err != nil {
				t.Fatalf("Failed to parse JSON response: %v", err)
			}
			if result["address"] != tt.expectAddress {
				t.Errorf("Expected address %q, got %q", tt.expectAddress, result["address"])
			}
		})
	}
}

func TestPlaceholderEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.close()

	resp, body := ts.get(t, "/placeholder.png?level=2&z=5")
	assertStatusCode(t, resp, http.StatusOK)
	assertContentType(t, resp, "image/png")
	assertPNG(t, body)
}

func TestStackEndpoint_GrowAndEvict(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.close()

	resp, body := ts.get(t, "/api/stack")
	assertStatusCode(t, resp, http.StatusOK)
	snap := decodeSnapshot(t, body)
	if snap.State.Total != 3 || len(snap.Items) != 3 {
		t.Fatalf("unexpected initial state %+v", snap.State)
	}

	resp, body = ts.post(t, "/api/stack/items/"+snap.Items[0].ID+"/loaded", nil)
	assertStatusCode(t, resp, http.StatusOK)
	snap = decodeSnapshot(t, body)
	if snap.State.Behind != 1 || snap.State.Ahead != 1 || len(snap.Items) != 9 {
		t.Fatalf("expected one plane each side, got %+v", snap.State)
	}

	resp, body = ts.post(t, "/api/stack/evict/behind", nil)
	assertStatusCode(t, resp, http.StatusOK)
	snap = decodeSnapshot(t, body)
	if snap.State.Behind != 0 || len(snap.Items) != 6 {
		t.Fatalf("expected behind edge evicted, got %+v", snap.State)
	}
	for _, it := range snap.Items {
		if it.Z == -1 {
			t.Fatalf("item at z=-1 survived eviction")
		}
	}

	resp, _ = ts.post(t, "/api/stack/evict/sideways", nil)
	assertStatusCode(t, resp, http.StatusBadRequest)
}

func TestStackEndpoint_Errors(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.close()

	resp, _ := ts.post(t, "/api/stack/items/not-a-uuid/loaded", nil)
	assertStatusCode(t, resp, http.StatusBadRequest)

	resp, _ = ts.post(t, "/api/stack/items/6ba7b810-9dad-11d1-80b4-00c04fd430c8/loaded", nil)
	assertStatusCode(t, resp, http.StatusNotFound)

	resp, _ = ts.post(t, "/api/stack/center", map[string]string{})
	assertStatusCode(t, resp, http.StatusBadRequest)

	resp, _ = ts.get(t, "/api/stack/edges/sideways")
	assertStatusCode(t, resp, http.StatusBadRequest)
}

func TestStackEndpoint_RedrawAndZoom(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.close()

	resp, body := ts.post(t, "/api/stack/redraw", redrawRequest{NeedsRedraw: true})
	assertStatusCode(t, resp, http.StatusOK)
	snap := decodeSnapshot(t, body)
	if !snap.Redraw {
		t.Fatal("expected redraw flag set")
	}

	_, body = ts.post(t, "/api/stack/items/"+snap.Items[0].ID+"/loaded", nil)
	if snap = decodeSnapshot(t, body); snap.State.Behind != 0 {
		t.Fatalf("expected no growth while redraw pending, got %+v", snap.State)
	}

	resp, body = ts.post(t, "/api/stack/zoom", zoomRequest{Factor: 3})
	assertStatusCode(t, resp, http.StatusOK)
	var zoom map[string]interface{}
	if err := json.Unmarshal(body, &zoom); err != nil {
		t.Fatalf("Failed to parse JSON response: %v", err)
	}
	if zoom["level"] != float64(2) {
		t.Errorf("Expected level 2 for factor 3, got %v", zoom["level"])
	}
}

func TestStackEndpoint_CenterShowAndEdges(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.close()

	z := 12
	resp, body := ts.post(t, "/api/stack/center", centerRequest{Z: &z})
	assertStatusCode(t, resp, http.StatusOK)
	snap := decodeSnapshot(t, body)
	if snap.State.Center != 12 {
		t.Fatalf("expected centre 12, got %d", snap.State.Center)
	}

	_, body = ts.post(t, "/api/stack/items/"+snap.Items[0].ID+"/loaded", nil)
	snap = decodeSnapshot(t, body)

	shown := []string{snap.Items[0].ID, snap.Items[1].ID, snap.Items[2].ID}
	resp, body = ts.post(t, "/api/stack/show", showRequest{Slots: snap.Index.Start})
	assertStatusCode(t, resp, http.StatusOK)
	snap = decodeSnapshot(t, body)
	top := snap.Items[len(snap.Items)-3:]
	for i, it := range top {
		if it.ID != shown[i] {
			t.Fatalf("position %d: expected shown item %s on top, got %s", it.Position, shown[i], it.ID)
		}
	}

	resp, body = ts.get(t, "/api/stack/edges/end")
	assertStatusCode(t, resp, http.StatusOK)
	var edge struct {
		Ready bool     `json:"ready"`
		Items []string `json:"items"`
	}
	if err := json.Unmarshal(body, &edge); err != nil {
		t.Fatalf("Failed to parse JSON response: %v", err)
	}
	if !edge.Ready || len(edge.Items) != 3 {
		t.Errorf("expected three items at the end edge, got %+v", edge)
	}
}
