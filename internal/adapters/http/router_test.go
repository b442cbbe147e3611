package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dkeye/voicehost/internal/app"
	"github.com/dkeye/voicehost/internal/config"
	"github.com/dkeye/voicehost/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRoom struct {
	id    domain.RoomID
	peers []app.PeerInfo
}

func (s *stubRoom) Room() domain.Room {
	var ids []domain.PeerID
	for _, p := range s.peers {
		ids = append(ids, p.ID)
	}
	return domain.Room{ID: s.id, Peers: ids}
}

func (s *stubRoom) PeerInfos() []app.PeerInfo { return s.peers }

type stubMuter struct {
	muted   map[domain.PeerID]bool
	sending map[domain.PeerID]bool
}

func (m *stubMuter) SetMuted(id domain.PeerID, muted bool) bool {
	m.muted[id] = muted
	return true
}
func (m *stubMuter) Muted(id domain.PeerID) bool    { return m.muted[id] }
func (m *stubMuter) HasRelay(id domain.PeerID) bool { return m.sending[id] }

func testConfig() *config.Config {
	return &config.Config{Mode: "release", ShareBaseURL: "http://localhost:3000"}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	r := SetupRouter(testConfig(), &stubRoom{}, nil)
	w := do(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRoomBeforeAndAfterCreation(t *testing.T) {
	room := &stubRoom{}
	r := SetupRouter(testConfig(), room, nil)

	w := do(t, r, http.MethodGet, "/api/room", "")
	assert.JSONEq(t, `{"room":"","link":"","peers":[]}`, w.Body.String())

	room.id = "room1"
	room.peers = []app.PeerInfo{{ID: "a", State: "connected"}, {ID: "b", State: "offer_sent"}}
	w = do(t, r, http.MethodGet, "/api/room", "")
	assert.JSONEq(t, `{"room":"room1","link":"http://localhost:3000/channel/room1","peers":["a","b"]}`, w.Body.String())
}

func TestPeersAndMute(t *testing.T) {
	room := &stubRoom{id: "room1", peers: []app.PeerInfo{{ID: "a", Role: "local", State: "connected"}}}
	muter := &stubMuter{muted: map[domain.PeerID]bool{}, sending: map[domain.PeerID]bool{"a": true}}
	r := SetupRouter(testConfig(), room, muter)

	w := do(t, r, http.MethodPost, "/api/peers/a/mute", `{"muted":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, muter.muted["a"])

	w = do(t, r, http.MethodGet, "/api/peers", "")
	var body struct {
		Peers []struct {
			ID      string `json:"id"`
			State   string `json:"state"`
			Muted   bool   `json:"muted"`
			Sending bool   `json:"sending"`
		} `json:"peers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Peers, 1)
	assert.Equal(t, "connected", body.Peers[0].State)
	assert.True(t, body.Peers[0].Muted)
	assert.True(t, body.Peers[0].Sending)

	w = do(t, r, http.MethodPost, "/api/peers/ghost/mute", `{"muted":true}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodPost, "/api/peers/a/mute", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMuteDisabledWithoutMuter(t *testing.T) {
	room := &stubRoom{id: "room1", peers: []app.PeerInfo{{ID: "a"}}}
	r := SetupRouter(testConfig(), room, nil)
	w := do(t, r, http.MethodPost, "/api/peers/a/mute", `{"muted":true}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
