package services

import "sfucore/internal/core/domain"

// roomMetrics decouples the scheduler/room from the concrete Prometheus
// registry; internal/infrastructure/monitoring provides the real
// implementation, tests use a no-op.
type roomMetrics interface {
	RoomCreated(id domain.RoomID)
	RoomClosed(id domain.RoomID)
}

type noopMetrics struct{}

func (noopMetrics) RoomCreated(domain.RoomID) {}
func (noopMetrics) RoomClosed(domain.RoomID)  {}
