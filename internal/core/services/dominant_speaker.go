package services

import (
	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"
)

// wireObservers hooks the room's audio-level and active-speaker observers
// into the message channel (spec.md §4.4): volumes/silence/dominantspeaker
// readings are broadcast to every joined peer, translating producer ids
// back to the owning peer id the client protocol expects. Called once
// from newRoom, after both observers have been created.
func (r *Room) wireObservers() {
	if r.audioLevelObserver != nil {
		r.audioLevelObserver.OnVolumes(func(entries []ports.VolumeEntry) {
			r.enqueue(func() { r.notifyVolumesLocked(entries) })
		})
		r.audioLevelObserver.OnSilence(func() {
			r.enqueue(r.notifySilenceLocked)
		})
	}
	if r.activeSpeakerObserver != nil {
		r.activeSpeakerObserver.OnDominantSpeaker(func(producerID domain.ProducerID) {
			r.enqueue(func() { r.notifyDominantSpeakerLocked(producerID) })
		})
	}
}

// notifyVolumesLocked, notifySilenceLocked and notifyDominantSpeakerLocked
// run on the room's actor goroutine (scheduled via enqueue from the
// engine's own observer callback goroutine) and only read state. They call
// Notify on each joined peer's channel directly from that goroutine,
// ignoring the result.
//
// notifyVolumesLocked sends a single batched speakingPeers notification
// (spec.md §4.4 "the room broadcasts speakingPeers({peerId, volume}[]) to
// all joined peers"), not one notification per entry.
func (r *Room) notifyVolumesLocked(entries []ports.VolumeEntry) {
	var peerVolumes []map[string]interface{}
	for _, e := range entries {
		p, ok := r.observedProducers[e.ProducerID]
		if !ok {
			continue
		}
		peerVolumes = append(peerVolumes, map[string]interface{}{"peerId": p.PeerID, "volume": e.Volume})
	}
	if len(peerVolumes) == 0 {
		return
	}
	for _, rp := range r.joinedPeers {
		_ = rp.channel.Notify("speakingPeers", peerVolumes)
	}
}

// notifySilenceLocked sends the pair of notifications spec.md §4.4 requires
// on silence: speakingPeers with an empty volume list, and activeSpeaker
// with no peer.
func (r *Room) notifySilenceLocked() {
	for _, rp := range r.joinedPeers {
		_ = rp.channel.Notify("speakingPeers", map[string]interface{}{"peerVolumes": []interface{}{}})
		_ = rp.channel.Notify("activeSpeaker", map[string]interface{}{"peerId": nil})
	}
}

func (r *Room) notifyDominantSpeakerLocked(producerID domain.ProducerID) {
	p, ok := r.observedProducers[producerID]
	if !ok {
		return
	}
	for _, rp := range r.joinedPeers {
		_ = rp.channel.Notify("activeSpeaker", map[string]interface{}{"peerId": p.PeerID})
	}
}
