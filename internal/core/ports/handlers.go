package ports

import (
	"context"

	"sfucore/internal/core/domain"

	"github.com/gin-gonic/gin"
)

// BroadcasterHTTPHandler implements the HTTP surface of spec.md §6.
type BroadcasterHTTPHandler interface {
	GetRouterRTPCapabilities(c *gin.Context)
	CreateBroadcaster(c *gin.Context)
	DeleteBroadcaster(c *gin.Context)
	JoinBroadcaster(c *gin.Context)
	CreateTransport(c *gin.Context)
	ConnectTransport(c *gin.Context)
	CreateProducer(c *gin.Context)
	CreateConsumer(c *gin.Context)
	ResumeConsumer(c *gin.Context)
}

// MessageChannelHandler implements the interactive peer signaling surface
// of spec.md §4.7 over a framed socket.
type MessageChannelHandler interface {
	HandleConnection(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID, conn interface{}) error
	HandleDisconnect(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID) error
}
