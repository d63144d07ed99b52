// Package httpapi is the gin-gonic/gin implementation of
// ports.BroadcasterHTTPHandler: the request/response half of spec.md §6's
// HTTP surface, adapted from internal/handlers/http/stream_handler.go's
// route-group-plus-bind-then-call shape onto the room's broadcaster
// operations instead of the teacher's stream/peer model.
package httpapi

import (
	"context"
	"net/http"

	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"
	apperrors "sfucore/pkg/errors"
	"sfucore/pkg/validation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RoomLookup resolves a roomId path parameter to the Room the broadcaster
// flow is driving, creating it through the scheduler with the handler's
// configured defaults if it does not exist yet.
type RoomLookup func(ctx context.Context, roomID domain.RoomID) (RoomOps, error)

// RoomOps is the subset of *services.Room the broadcaster HTTP surface
// drives (spec.md §6).
type RoomOps interface {
	GetRouterRTPCapabilities() domain.RTPCapabilities
	CreateBroadcaster(ctx context.Context, id domain.PeerID, displayName string, device domain.Device) (*domain.BroadcasterPeer, error)
	DeleteBroadcaster(ctx context.Context, id domain.PeerID) error
	JoinBroadcaster(ctx context.Context, id domain.PeerID, rtpCapabilities domain.RTPCapabilities) error
	CreateBroadcasterTransport(ctx context.Context, id domain.PeerID, direction domain.TransportDirection) (ports.Transport, error)
	ConnectBroadcasterTransport(ctx context.Context, id domain.PeerID, transportID domain.TransportID, params ports.ConnectParams) error
	CreateBroadcasterProducer(ctx context.Context, id domain.PeerID, transportID domain.TransportID, kind string, rtpParameters map[string]interface{}, source domain.Source) (ports.ProducerHandle, error)
	CreateBroadcasterConsumer(ctx context.Context, id domain.PeerID, transportID domain.TransportID, producerID domain.ProducerID) (ports.ConsumerHandle, error)
	ResumeBroadcasterConsumer(ctx context.Context, consumerID domain.ConsumerID) error
}

// Handler implements ports.BroadcasterHTTPHandler over a RoomLookup.
type Handler struct {
	rooms  RoomLookup
	logger *zap.SugaredLogger
}

func NewHandler(rooms RoomLookup, logger *zap.SugaredLogger) *Handler {
	return &Handler{rooms: rooms, logger: logger}
}

// SetupRoutes wires the exact verb/path table spec.md §6 lists, under the
// origin-check, rate-limit, tracing, error-handler and recovery middleware
// the caller has already attached to router (see cmd/sfu/main.go).
func (h *Handler) SetupRoutes(router *gin.Engine) {
	rooms := router.Group("/rooms/:roomId")
	{
		rooms.GET("", h.GetRouterRTPCapabilities)

		b := rooms.Group("/broadcasters")
		{
			b.POST("", h.CreateBroadcaster)
			b.DELETE("/:peerId", h.DeleteBroadcaster)
			b.POST("/:peerId/join", h.JoinBroadcaster)
			b.POST("/:peerId/transports", h.CreateTransport)
			b.POST("/:peerId/transports/:transportId/connect", h.ConnectTransport)
			b.POST("/:peerId/producers", h.CreateProducer)
			b.POST("/:peerId/consumers", h.CreateConsumer)
			b.POST("/:peerId/consumers/:consumerId/resume", h.ResumeConsumer)
		}
	}
}

func (h *Handler) room(c *gin.Context) (RoomOps, bool) {
	roomIDParam := c.Param("roomId")
	if err := validation.ValidateRoomID(roomIDParam); err != nil {
		_ = c.Error(apperrors.NewTypeError(err.Error()))
		return nil, false
	}
	roomID := domain.RoomID(roomIDParam)
	room, err := h.rooms(c.Request.Context(), roomID)
	if err != nil {
		_ = c.Error(mapRoomError(err))
		return nil, false
	}
	return room, true
}

func (h *Handler) GetRouterRTPCapabilities(c *gin.Context) {
	room, ok := h.room(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, room.GetRouterRTPCapabilities())
}

func (h *Handler) CreateBroadcaster(c *gin.Context) {
	room, ok := h.room(c)
	if !ok {
		return
	}

	var req struct {
		PeerID      domain.PeerID `json:"peerId" binding:"required"`
		DisplayName string        `json:"displayName"`
		Device      domain.Device `json:"device"`
	}
	if err := c.BindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewTypeError(err.Error()))
		return
	}
	if err := validation.ValidatePeerID(string(req.PeerID)); err != nil {
		_ = c.Error(apperrors.NewTypeError(err.Error()))
		return
	}
	if err := validation.ValidateDisplayName(req.DisplayName); err != nil {
		_ = c.Error(apperrors.NewTypeError(err.Error()))
		return
	}

	bp, err := room.CreateBroadcaster(c.Request.Context(), req.PeerID, req.DisplayName, req.Device)
	if err != nil {
		_ = c.Error(mapRoomError(err))
		return
	}

	c.Header("Location", c.Request.URL.Path+"/"+string(bp.ID))
	c.JSON(http.StatusCreated, bp)
}

func (h *Handler) DeleteBroadcaster(c *gin.Context) {
	room, ok := h.room(c)
	if !ok {
		return
	}
	peerID := domain.PeerID(c.Param("peerId"))
	if err := room.DeleteBroadcaster(c.Request.Context(), peerID); err != nil {
		_ = c.Error(mapRoomError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) JoinBroadcaster(c *gin.Context) {
	room, ok := h.room(c)
	if !ok {
		return
	}
	peerID := domain.PeerID(c.Param("peerId"))

	var req struct {
		RTPCapabilities domain.RTPCapabilities `json:"rtpCapabilities"`
	}
	_ = c.ShouldBindJSON(&req)

	if err := room.JoinBroadcaster(c.Request.Context(), peerID, req.RTPCapabilities); err != nil {
		_ = c.Error(mapRoomError(err))
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) CreateTransport(c *gin.Context) {
	room, ok := h.room(c)
	if !ok {
		return
	}
	peerID := domain.PeerID(c.Param("peerId"))

	var req struct {
		Direction domain.TransportDirection `json:"direction"`
	}
	if err := c.BindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewTypeError(err.Error()))
		return
	}
	if req.Direction == "" {
		req.Direction = domain.DirectionProduce
	}

	transport, err := room.CreateBroadcasterTransport(c.Request.Context(), peerID, req.Direction)
	if err != nil {
		_ = c.Error(mapRoomError(err))
		return
	}

	ip, port, rtcpPort := transport.PlainTransportInfo()
	c.JSON(http.StatusCreated, gin.H{
		"transportId": transport.ID(),
		"ip":          ip,
		"port":        port,
		"rtcpPort":    rtcpPort,
	})
}

func (h *Handler) ConnectTransport(c *gin.Context) {
	room, ok := h.room(c)
	if !ok {
		return
	}
	peerID := domain.PeerID(c.Param("peerId"))
	transportID := domain.TransportID(c.Param("transportId"))

	var req struct {
		IP       string `json:"ip"`
		Port     int    `json:"port"`
		RTCPPort int    `json:"rtcpPort"`
	}
	if err := c.BindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewTypeError(err.Error()))
		return
	}

	params := ports.ConnectParams{IP: req.IP, Port: req.Port, RTCPPort: req.RTCPPort}
	if err := room.ConnectBroadcasterTransport(c.Request.Context(), peerID, transportID, params); err != nil {
		_ = c.Error(mapRoomError(err))
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) CreateProducer(c *gin.Context) {
	room, ok := h.room(c)
	if !ok {
		return
	}
	peerID := domain.PeerID(c.Param("peerId"))

	var req struct {
		TransportID   domain.TransportID     `json:"transportId" binding:"required"`
		Kind          string                 `json:"kind" binding:"required"`
		RTPParameters map[string]interface{} `json:"rtpParameters"`
		AppData       struct {
			Source domain.Source `json:"source"`
		} `json:"appData"`
	}
	if err := c.BindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewTypeError(err.Error()))
		return
	}

	handle, err := room.CreateBroadcasterProducer(c.Request.Context(), peerID, req.TransportID, req.Kind, req.RTPParameters, req.AppData.Source)
	if err != nil {
		_ = c.Error(mapRoomError(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"producerId": handle.ID()})
}

func (h *Handler) CreateConsumer(c *gin.Context) {
	room, ok := h.room(c)
	if !ok {
		return
	}
	peerID := domain.PeerID(c.Param("peerId"))

	var req struct {
		TransportID domain.TransportID `json:"transportId" binding:"required"`
		ProducerID  domain.ProducerID  `json:"producerId" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewTypeError(err.Error()))
		return
	}

	handle, err := room.CreateBroadcasterConsumer(c.Request.Context(), peerID, req.TransportID, req.ProducerID)
	if err != nil {
		_ = c.Error(mapRoomError(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"consumerId": handle.ID()})
}

func (h *Handler) ResumeConsumer(c *gin.Context) {
	room, ok := h.room(c)
	if !ok {
		return
	}
	consumerID := domain.ConsumerID(c.Param("consumerId"))
	if err := room.ResumeBroadcasterConsumer(c.Request.Context(), consumerID); err != nil {
		_ = c.Error(mapRoomError(err))
		return
	}
	c.Status(http.StatusOK)
}

var _ ports.BroadcasterHTTPHandler = (*Handler)(nil)
