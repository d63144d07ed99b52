package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// RoomLookup resolves a roomID to the Room the peer is attaching to,
// creating it through the scheduler if necessary. Kept as a narrow
// function type rather than importing internal/core/services directly, so
// this package only depends on ports.
type RoomLookup func(ctx context.Context, roomID domain.RoomID) (RoomOps, error)

// RoomOps is the subset of *services.Room the signaling surface drives.
type RoomOps interface {
	AttachPeer(ctx context.Context, peerID domain.PeerID, address string, device domain.Device, channel ports.PeerChannel) error
	Join(ctx context.Context, peerID domain.PeerID, displayName string, device domain.Device, rtpCapabilities domain.RTPCapabilities, sctpCapabilities domain.SCTPCapabilities) (*domain.Peer, []*domain.Peer, error)
	Disconnect(ctx context.Context, peerID domain.PeerID)
	GetRouterRTPCapabilities() domain.RTPCapabilities
	CreateWebRTCTransport(ctx context.Context, peerID domain.PeerID, direction domain.TransportDirection, sctpCapabilities domain.SCTPCapabilities) (ports.Transport, error)
	ConnectTransport(ctx context.Context, peerID domain.PeerID, transportID domain.TransportID, params ports.ConnectParams) error
	RestartIce(ctx context.Context, peerID domain.PeerID, transportID domain.TransportID) (map[string]interface{}, error)
	Produce(ctx context.Context, peerID domain.PeerID, transportID domain.TransportID, kind string, rtpParameters map[string]interface{}, source domain.Source) (ports.ProducerHandle, error)
	ProduceData(ctx context.Context, peerID domain.PeerID, transportID domain.TransportID, sctpStreamParameters map[string]interface{}, label, protocol string, channel domain.Channel) (ports.DataProducerHandle, error)
	CloseProducer(peerID domain.PeerID, producerID domain.ProducerID)
	PauseProducer(peerID domain.PeerID, producerID domain.ProducerID, paused bool)
	ResumeConsumer(ctx context.Context, peerID domain.PeerID, consumerID domain.ConsumerID) error
	PauseConsumer(ctx context.Context, peerID domain.PeerID, consumerID domain.ConsumerID) error
	SetConsumerPreferredLayers(ctx context.Context, consumerID domain.ConsumerID, spatial, temporal int) error
	SetConsumerPriority(ctx context.Context, consumerID domain.ConsumerID, priority int) error
	RequestConsumerKeyFrame(ctx context.Context, consumerID domain.ConsumerID) error
	ChangeDisplayName(peerID domain.PeerID, displayName string)
	GetTransportStats(ctx context.Context, peerID domain.PeerID, transportID domain.TransportID) (map[string]interface{}, error)
	GetProducerStats(ctx context.Context, producerID domain.ProducerID) (map[string]interface{}, error)
	GetConsumerStats(ctx context.Context, consumerID domain.ConsumerID) (map[string]interface{}, error)
	GetDataProducerStats(ctx context.Context, dataProducerID domain.DataProducerID) (map[string]interface{}, error)
	GetDataConsumerStats(ctx context.Context, dataConsumerID domain.DataConsumerID) (map[string]interface{}, error)
}

// ThrottleOps is the subset of the process-wide throttle coordinator the
// signaling surface drives (spec.md §4.2 applyNetworkThrottle/
// stopNetworkThrottle).
type ThrottleOps interface {
	Apply(ctx context.Context, opts domain.ThrottleOptions) error
	Stop(ctx context.Context, secret string) error
}

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Handler implements ports.MessageChannelHandler: one gorilla/websocket
// connection per interactive peer, dispatched onto a room (spec.md §4.2,
// §4.7), adapted from websocket_server.go's HandleWebSocket.
type Handler struct {
	rooms    RoomLookup
	throttle ThrottleOps
	logger   *zap.SugaredLogger
}

func NewHandler(rooms RoomLookup, throttle ThrottleOps, logger *zap.SugaredLogger) *Handler {
	return &Handler{rooms: rooms, throttle: throttle, logger: logger}
}

// ServeHTTP upgrades the connection and blocks for its lifetime, the entry
// point an HTTP router wires to e.g. GET /rooms/:roomId/peers/:peerId/ws.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request, roomID domain.RoomID, peerID domain.PeerID) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	if err := h.HandleConnection(r.Context(), roomID, peerID, conn); err != nil {
		h.logger.Infow("peer connection ended", "room_id", roomID, "peer_id", peerID, "error", err)
	}
}

func (h *Handler) HandleConnection(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID, conn interface{}) error {
	wsConn, ok := conn.(*websocket.Conn)
	if !ok {
		return fmt.Errorf("signal: expected *websocket.Conn, got %T", conn)
	}
	defer wsConn.Close()

	room, err := h.rooms(ctx, roomID)
	if err != nil {
		return fmt.Errorf("get or create room: %w", err)
	}

	channel := NewChannel(wsConn, h.logger)
	defer channel.Close()

	if err := room.AttachPeer(ctx, peerID, wsConn.RemoteAddr().String(), domain.Device{}, channel); err != nil {
		return fmt.Errorf("attach peer: %w", err)
	}

	disp := &connDispatcher{
		room:     room,
		throttle: h.throttle,
		roomID:   roomID,
		peerID:   peerID,
		logger:   h.logger,
	}

	err = channel.runReadLoop(ctx, disp)
	room.Disconnect(context.Background(), peerID)
	return err
}

func (h *Handler) HandleDisconnect(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID) error {
	room, err := h.rooms(ctx, roomID)
	if err != nil {
		return err
	}
	room.Disconnect(ctx, peerID)
	return nil
}

var _ ports.MessageChannelHandler = (*Handler)(nil)

// connDispatcher translates wire requests/notifications from one peer's
// channel into Room method calls, the method vocabulary spec.md §4.2 lists
// under "Request handlers" and "Notifications from peer".
type connDispatcher struct {
	room     RoomOps
	throttle ThrottleOps
	roomID   domain.RoomID
	peerID   domain.PeerID
	logger   *zap.SugaredLogger
}

func (d *connDispatcher) HandleRequest(ctx context.Context, method string, data json.RawMessage) (interface{}, error) {
	switch method {
	case "join":
		var req struct {
			DisplayName      string                  `json:"displayName"`
			Device           domain.Device           `json:"device"`
			RTPCapabilities  domain.RTPCapabilities  `json:"rtpCapabilities"`
			SCTPCapabilities domain.SCTPCapabilities `json:"sctpCapabilities"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		self, others, err := d.room.Join(ctx, d.peerID, req.DisplayName, req.Device, req.RTPCapabilities, req.SCTPCapabilities)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"self": self, "peers": others}, nil

	case "getRouterRtpCapabilities":
		return d.room.GetRouterRTPCapabilities(), nil

	case "createWebRtcTransport":
		var req struct {
			Direction        domain.TransportDirection `json:"direction"`
			SCTPCapabilities domain.SCTPCapabilities   `json:"sctpCapabilities"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		t, err := d.room.CreateWebRTCTransport(ctx, d.peerID, req.Direction, req.SCTPCapabilities)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"id":              t.ID(),
			"iceDtlsParameters": t.IceDtlsParameters(),
		}, nil

	case "connectWebRtcTransport":
		var req struct {
			TransportID    domain.TransportID     `json:"transportId"`
			DTLSParameters map[string]interface{} `json:"dtlsParameters"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		err := d.room.ConnectTransport(ctx, d.peerID, req.TransportID, ports.ConnectParams{DTLSParameters: req.DTLSParameters})
		return nil, err

	case "restartIce":
		var req struct {
			TransportID domain.TransportID `json:"transportId"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		return d.room.RestartIce(ctx, d.peerID, req.TransportID)

	case "produce":
		var req struct {
			TransportID   domain.TransportID     `json:"transportId"`
			Kind          string                 `json:"kind"`
			RTPParameters map[string]interface{} `json:"rtpParameters"`
			Source        domain.Source          `json:"appData"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		p, err := d.room.Produce(ctx, d.peerID, req.TransportID, req.Kind, req.RTPParameters, req.Source)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"id": p.ID()}, nil

	case "produceData":
		var req struct {
			TransportID          domain.TransportID     `json:"transportId"`
			SCTPStreamParameters map[string]interface{} `json:"sctpStreamParameters"`
			Label                string                 `json:"label"`
			Protocol             string                 `json:"protocol"`
			Channel              domain.Channel         `json:"appData"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		dp, err := d.room.ProduceData(ctx, d.peerID, req.TransportID, req.SCTPStreamParameters, req.Label, req.Protocol, req.Channel)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"id": dp.ID()}, nil

	case "getTransportStats":
		var req struct {
			TransportID domain.TransportID `json:"transportId"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		return d.room.GetTransportStats(ctx, d.peerID, req.TransportID)

	case "getProducerStats":
		var req struct {
			ProducerID domain.ProducerID `json:"producerId"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		return d.room.GetProducerStats(ctx, req.ProducerID)

	case "getConsumerStats":
		var req struct {
			ConsumerID domain.ConsumerID `json:"consumerId"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		return d.room.GetConsumerStats(ctx, req.ConsumerID)

	case "getDataProducerStats":
		var req struct {
			DataProducerID domain.DataProducerID `json:"dataProducerId"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		return d.room.GetDataProducerStats(ctx, req.DataProducerID)

	case "getDataConsumerStats":
		var req struct {
			DataConsumerID domain.DataConsumerID `json:"dataConsumerId"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		return d.room.GetDataConsumerStats(ctx, req.DataConsumerID)

	case "applyNetworkThrottle":
		var opts domain.ThrottleOptions
		if err := json.Unmarshal(data, &opts); err != nil {
			return nil, err
		}
		return nil, d.throttle.Apply(ctx, opts)

	case "stopNetworkThrottle":
		var req struct {
			Secret string `json:"secret"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		return nil, d.throttle.Stop(ctx, req.Secret)

	default:
		return nil, fmt.Errorf("unknown request method %q", method)
	}
}

func (d *connDispatcher) HandleNotification(ctx context.Context, method string, data json.RawMessage) {
	switch method {
	case "closeProducer":
		var req struct {
			ProducerID domain.ProducerID `json:"producerId"`
		}
		if json.Unmarshal(data, &req) == nil {
			d.room.CloseProducer(d.peerID, req.ProducerID)
		}

	case "pauseProducer":
		var req struct {
			ProducerID domain.ProducerID `json:"producerId"`
		}
		if json.Unmarshal(data, &req) == nil {
			d.room.PauseProducer(d.peerID, req.ProducerID, true)
		}

	case "resumeProducer":
		var req struct {
			ProducerID domain.ProducerID `json:"producerId"`
		}
		if json.Unmarshal(data, &req) == nil {
			d.room.PauseProducer(d.peerID, req.ProducerID, false)
		}

	case "pauseConsumer":
		var req struct {
			ConsumerID domain.ConsumerID `json:"consumerId"`
		}
		if json.Unmarshal(data, &req) == nil {
			if err := d.room.PauseConsumer(ctx, d.peerID, req.ConsumerID); err != nil {
				d.logger.Warnw("pauseConsumer failed", "peer_id", d.peerID, "error", err)
			}
		}

	case "resumeConsumer":
		var req struct {
			ConsumerID domain.ConsumerID `json:"consumerId"`
		}
		if json.Unmarshal(data, &req) == nil {
			if err := d.room.ResumeConsumer(ctx, d.peerID, req.ConsumerID); err != nil {
				d.logger.Warnw("resumeConsumer failed", "peer_id", d.peerID, "error", err)
			}
		}

	case "setConsumerPreferredLayers":
		var req struct {
			ConsumerID domain.ConsumerID `json:"consumerId"`
			Spatial    int               `json:"spatialLayer"`
			Temporal   int               `json:"temporalLayer"`
		}
		if json.Unmarshal(data, &req) == nil {
			if err := d.room.SetConsumerPreferredLayers(ctx, req.ConsumerID, req.Spatial, req.Temporal); err != nil {
				d.logger.Warnw("setConsumerPreferredLayers failed", "peer_id", d.peerID, "error", err)
			}
		}

	case "setConsumerPriority":
		var req struct {
			ConsumerID domain.ConsumerID `json:"consumerId"`
			Priority   int               `json:"priority"`
		}
		if json.Unmarshal(data, &req) == nil {
			if err := d.room.SetConsumerPriority(ctx, req.ConsumerID, req.Priority); err != nil {
				d.logger.Warnw("setConsumerPriority failed", "peer_id", d.peerID, "error", err)
			}
		}

	case "requestConsumerKeyFrame":
		var req struct {
			ConsumerID domain.ConsumerID `json:"consumerId"`
		}
		if json.Unmarshal(data, &req) == nil {
			if err := d.room.RequestConsumerKeyFrame(ctx, req.ConsumerID); err != nil {
				d.logger.Warnw("requestConsumerKeyFrame failed", "peer_id", d.peerID, "error", err)
			}
		}

	case "changeDisplayName":
		var req struct {
			DisplayName string `json:"displayName"`
		}
		if json.Unmarshal(data, &req) == nil {
			d.room.ChangeDisplayName(d.peerID, req.DisplayName)
		}

	default:
		d.logger.Debugw("unknown notification method", "method", method)
	}
}
