package mediaengine

import (
	"context"
	"sync"
	"time"

	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"
	"sfucore/pkg/utils"
)

// sampleInterval is how often the observers poll producer activity.
// mediasoup's own AudioLevelObserver defaults to a 500ms interval; kept
// the same here since nothing in this engine depends on a tighter one.
const sampleInterval = 500 * time.Millisecond

// audioLevelObserver reports periodic per-producer volume and silence by
// polling each added producer's forwarded-packet counter. It has no real
// RTP audio-level header extension to read (none is negotiated by this
// engine), so packet arrival rate stands in for loudness.
type audioLevelObserver struct {
	mu        sync.Mutex
	id        domain.ObserverID
	router    *Router
	producers map[domain.ProducerID]*Producer
	lastCount map[domain.ProducerID]int
	onVolumes func(entries []ports.VolumeEntry)
	onSilence func()
	stop      chan struct{}
	closed    bool
}

func newAudioLevelObserver(r *Router) *audioLevelObserver {
	o := &audioLevelObserver{
		id:        domain.ObserverID(utils.GenerateID("audiolevel")),
		router:    r,
		producers: make(map[domain.ProducerID]*Producer),
		lastCount: make(map[domain.ProducerID]int),
		stop:      make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *audioLevelObserver) ID() domain.ObserverID { return o.id }

func (o *audioLevelObserver) AddProducer(ctx context.Context, producerID domain.ProducerID) error {
	o.router.mu.Lock()
	p, ok := o.router.producers[producerID]
	o.router.mu.Unlock()
	if !ok {
		return domain.ErrProducerNotFound
	}
	o.mu.Lock()
	o.producers[producerID] = p
	o.mu.Unlock()
	return nil
}

func (o *audioLevelObserver) RemoveProducer(ctx context.Context, producerID domain.ProducerID) error {
	o.mu.Lock()
	delete(o.producers, producerID)
	o.mu.Unlock()
	return nil
}

func (o *audioLevelObserver) OnVolumes(f func(entries []ports.VolumeEntry)) {
	o.mu.Lock()
	o.onVolumes = f
	o.mu.Unlock()
}

func (o *audioLevelObserver) OnSilence(f func()) {
	o.mu.Lock()
	o.onSilence = f
	o.mu.Unlock()
}

func (o *audioLevelObserver) run() {
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
			o.sample()
		}
	}
}

func (o *audioLevelObserver) sample() {
	o.mu.Lock()
	producers := make(map[domain.ProducerID]*Producer, len(o.producers))
	for id, p := range o.producers {
		producers[id] = p
	}
	onVolumes := o.onVolumes
	onSilence := o.onSilence
	o.mu.Unlock()

	var entries []ports.VolumeEntry
	o.mu.Lock()
	for id, p := range producers {
		total := p.packetCount()
		delta := total - o.lastCount[id]
		o.lastCount[id] = total
		if delta <= 0 {
			continue
		}
		volume := delta
		if volume > 127 {
			volume = 127
		}
		entries = append(entries, ports.VolumeEntry{ProducerID: id, Volume: volume})
	}
	o.mu.Unlock()

	if len(entries) == 0 {
		if onSilence != nil {
			onSilence()
		}
		return
	}
	if onVolumes != nil {
		onVolumes(entries)
	}
}

func (o *audioLevelObserver) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()
	close(o.stop)
}

// activeSpeakerObserver reports the producer with the highest sampled
// activity across a sampling window, the same signal audioLevelObserver
// uses, aggregated down to a single dominant speaker.
type activeSpeakerObserver struct {
	mu        sync.Mutex
	id        domain.ObserverID
	router    *Router
	producers map[domain.ProducerID]*Producer
	lastCount map[domain.ProducerID]int
	onSpeaker func(producerID domain.ProducerID)
	dominant  domain.ProducerID
	stop      chan struct{}
	closed    bool
}

func newActiveSpeakerObserver(r *Router) *activeSpeakerObserver {
	o := &activeSpeakerObserver{
		id:        domain.ObserverID(utils.GenerateID("activespeaker")),
		router:    r,
		producers: make(map[domain.ProducerID]*Producer),
		lastCount: make(map[domain.ProducerID]int),
		stop:      make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *activeSpeakerObserver) ID() domain.ObserverID { return o.id }

func (o *activeSpeakerObserver) AddProducer(ctx context.Context, producerID domain.ProducerID) error {
	o.router.mu.Lock()
	p, ok := o.router.producers[producerID]
	o.router.mu.Unlock()
	if !ok {
		return domain.ErrProducerNotFound
	}
	o.mu.Lock()
	o.producers[producerID] = p
	o.mu.Unlock()
	return nil
}

func (o *activeSpeakerObserver) RemoveProducer(ctx context.Context, producerID domain.ProducerID) error {
	o.mu.Lock()
	delete(o.producers, producerID)
	o.mu.Unlock()
	return nil
}

func (o *activeSpeakerObserver) OnDominantSpeaker(f func(producerID domain.ProducerID)) {
	o.mu.Lock()
	o.onSpeaker = f
	o.mu.Unlock()
}

func (o *activeSpeakerObserver) run() {
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
			o.sample()
		}
	}
}

func (o *activeSpeakerObserver) sample() {
	o.mu.Lock()
	producers := make(map[domain.ProducerID]*Producer, len(o.producers))
	for id, p := range o.producers {
		producers[id] = p
	}
	onSpeaker := o.onSpeaker
	current := o.dominant
	o.mu.Unlock()

	var best domain.ProducerID
	bestCount := 0
	o.mu.Lock()
	for id, p := range producers {
		total := p.packetCount()
		delta := total - o.lastCount[id]
		o.lastCount[id] = total
		if delta > bestCount {
			bestCount = delta
			best = id
		}
	}
	o.mu.Unlock()

	if bestCount == 0 || best == current {
		return
	}

	o.mu.Lock()
	o.dominant = best
	o.mu.Unlock()

	if onSpeaker != nil {
		onSpeaker(best)
	}
}

func (o *activeSpeakerObserver) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()
	close(o.stop)
}
