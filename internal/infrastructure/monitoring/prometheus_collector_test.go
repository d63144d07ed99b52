package monitoring

import (
	"testing"

	"sfucore/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// NewPrometheusCollector registers its metrics on the global default
// registry via promauto, so the whole suite shares a single instance
// rather than each test constructing its own (a second construction
// would panic on duplicate registration).
var collector = NewPrometheusCollector()

func TestPrometheusCollector_RoomLifecycleUpdatesGauges(t *testing.T) {
	before := testutil.ToFloat64(collector.roomsActiveTotal)

	collector.RoomCreated(domain.RoomID("room-a"))
	assert.Equal(t, before+1, testutil.ToFloat64(collector.roomsActiveTotal))

	collector.RoomClosed(domain.RoomID("room-a"))
	assert.Equal(t, before, testutil.ToFloat64(collector.roomsActiveTotal))
}

func TestPrometheusCollector_ProducerConsumerCounters(t *testing.T) {
	collector.RecordProducerCreated("room-b", "video")
	collector.RecordConsumerCreated("room-b", "video")

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.producersActive.WithLabelValues("room-b", "video")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.consumersActive.WithLabelValues("room-b", "video")))

	collector.RecordProducerClosed("room-b", "video")
	collector.RecordConsumerClosed("room-b", "video")

	assert.Equal(t, float64(0), testutil.ToFloat64(collector.producersActive.WithLabelValues("room-b", "video")))
	assert.Equal(t, float64(0), testutil.ToFloat64(collector.consumersActive.WithLabelValues("room-b", "video")))
}

func TestPrometheusCollector_ThrottleGaugeReflectsLastSet(t *testing.T) {
	collector.SetThrottleEnabled(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.throttleEnabled))

	collector.SetThrottleEnabled(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(collector.throttleEnabled))
}

func TestPrometheusCollector_DataTransferredIsCumulative(t *testing.T) {
	before := testutil.ToFloat64(collector.dataExchangedBytes)
	collector.RecordDataTransferred(1024)
	collector.RecordDataTransferred(2048)
	assert.Equal(t, before+3072, testutil.ToFloat64(collector.dataExchangedBytes))
}
