package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/mossy-p/webrtc-matchmaker/config"
	"github.com/mossy-p/webrtc-matchmaker/internal/matchmaking"
	"github.com/mossy-p/webrtc-matchmaker/internal/models"
)

const clusterTimeout = 2 * time.Second

// ClusterSource reports presence across every instance.
type ClusterSource interface {
	Cluster(ctx context.Context) (*models.ClusterStats, error)
}

// Stats reports the local matchmaker counts and, when a cluster source is
// configured, the mirrored cluster-wide counts. A failing cluster read still
// returns the local numbers.
func Stats(mm *matchmaking.Matchmaker, cluster ClusterSource, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := models.StatsResponse{Local: mm.Stats()}

		if cluster != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), clusterTimeout)
			defer cancel()

			stats, err := cluster.Cluster(ctx)
			if err != nil {
				log.Warn("failed to read cluster presence", zap.Error(err))
			} else {
				resp.Cluster = stats
			}
		}

		c.JSON(http.StatusOK, resp)
	}
}

// ICEServers serves the STUN/TURN configuration browsers should use.
func ICEServers(cfg config.ICEConfig) gin.HandlerFunc {
	servers := iceServers(cfg)
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"iceServers": servers})
	}
}

// iceServers builds one entry per configured URL. Credentials are only
// attached to TURN URLs.
func iceServers(cfg config.ICEConfig) []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(cfg.URLs))
	for _, url := range cfg.URLs {
		server := webrtc.ICEServer{URLs: []string{url}}
		if isTURN(url) && cfg.Username != "" {
			server.Username = cfg.Username
			server.Credential = cfg.Credential
		}
		servers = append(servers, server)
	}
	return servers
}

func isTURN(url string) bool {
	return strings.HasPrefix(url, "turn:") || strings.HasPrefix(url, "turns:")
}
