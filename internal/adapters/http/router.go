package http

import (
	"net/http"

	"github.com/dkeye/voicehost/internal/app"
	"github.com/dkeye/voicehost/internal/config"
	"github.com/dkeye/voicehost/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RoomView is what the status API reads from the host.
type RoomView interface {
	Room() domain.Room
	PeerInfos() []app.PeerInfo
}

// Muter stops and resumes forwarding of one participant's audio.
type Muter interface {
	SetMuted(id domain.PeerID, muted bool) bool
	Muted(id domain.PeerID) bool
	HasRelay(id domain.PeerID) bool
}

type roomView struct {
	domain.Room
	Link string `json:"link"`
}

type peerView struct {
	app.PeerInfo
	Muted   bool `json:"muted"`
	Sending bool `json:"sending"`
}

type muteRequest struct {
	Muted *bool `json:"muted" binding:"required"`
}

// SetupRouter builds the host status API. muter may be nil, which disables
// the mute endpoint.
func SetupRouter(cfg *config.Config, room RoomView, muter Muter) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	api.GET("/room", func(c *gin.Context) {
		v := roomView{Room: room.Room()}
		if v.ID != "" {
			v.Link = cfg.RoomLink(v.ID)
		}
		if v.Peers == nil {
			v.Peers = []domain.PeerID{}
		}
		c.JSON(http.StatusOK, v)
	})

	api.GET("/peers", func(c *gin.Context) {
		infos := room.PeerInfos()
		out := make([]peerView, 0, len(infos))
		for _, p := range infos {
			v := peerView{PeerInfo: p}
			if muter != nil {
				v.Muted = muter.Muted(p.ID)
				v.Sending = muter.HasRelay(p.ID)
			}
			out = append(out, v)
		}
		c.JSON(http.StatusOK, gin.H{"peers": out})
	})

	if muter != nil {
		api.POST("/peers/:id/mute", func(c *gin.Context) {
			id := domain.PeerID(c.Param("id"))
			if !hasPeer(room, id) {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown peer"})
				return
			}
			var req muteRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			muter.SetMuted(id, *req.Muted)
			log.Info().Str("module", "adapters.http").Str("peer", string(id)).Bool("muted", *req.Muted).Msg("mute set")
			c.JSON(http.StatusOK, gin.H{"id": id, "muted": *req.Muted})
		})
	}

	log.Info().Str("module", "adapters.http").Bool("mute", muter != nil).Msg("router setup")
	return r
}

func hasPeer(room RoomView, id domain.PeerID) bool {
	for _, p := range room.PeerInfos() {
		if p.ID == id {
			return true
		}
	}
	return false
}
