package main

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/compose-network/msgstream/internal/network"
	"github.com/compose-network/msgstream/x/stream"
)

// Hub fans every inbound message out to all other connected streams. A peer
// with nobody else connected gets its own messages echoed back.
type Hub struct {
	log     zerolog.Logger
	metrics *network.Metrics

	mtx     sync.RWMutex
	streams map[string]*stream.MessageStream
}

// NewHub creates an empty relay hub.
func NewHub(log zerolog.Logger, m *network.Metrics) *Hub {
	return &Hub{
		log:     log.With().Str("component", "relay-hub").Logger(),
		metrics: m,
		streams: make(map[string]*stream.MessageStream),
	}
}

// OnStream registers a newly activated stream with the hub.
func (h *Hub) OnStream(st *stream.MessageStream) stream.Listener {
	h.mtx.Lock()
	h.streams[st.ID()] = st
	h.mtx.Unlock()

	h.metrics.RecordConnection("accepted")
	h.log.Info().Str("stream_id", st.ID()).Msg("Stream joined")

	return &relayListener{hub: h, st: st, joined: time.Now()}
}

// Size returns the number of live streams.
func (h *Hub) Size() int {
	h.mtx.RLock()
	defer h.mtx.RUnlock()
	return len(h.streams)
}

func (h *Hub) relay(from *stream.MessageStream, payload []byte) {
	h.mtx.RLock()
	peers := make([]*stream.MessageStream, 0, len(h.streams))
	for id, st := range h.streams {
		if id != from.ID() {
			peers = append(peers, st)
		}
	}
	h.mtx.RUnlock()

	// Sole peer: echo.
	if len(peers) == 0 {
		peers = append(peers, from)
	}

	for _, st := range peers {
		if !st.IsReady() {
			h.metrics.RecordError("backpressure", "relay")
			h.log.Debug().Str("stream_id", st.ID()).Msg("Peer not ready, dropping message")
			continue
		}
		if err := st.WriteMessage(payload); err != nil {
			h.metrics.RecordError("write", "relay")
			h.log.Warn().Err(err).Str("stream_id", st.ID()).Msg("Relay write failed")
			continue
		}
		if err := st.Flush(); err != nil {
			h.metrics.RecordError("flush", "relay")
			h.log.Warn().Err(err).Str("stream_id", st.ID()).Msg("Relay flush failed")
		}
	}
}

func (h *Hub) remove(st *stream.MessageStream, joined time.Time, cause error) {
	h.mtx.Lock()
	delete(h.streams, st.ID())
	h.mtx.Unlock()

	h.metrics.RecordConnection("closed")
	h.metrics.RecordConnectionDuration(time.Since(joined))

	evt := h.log.Info()
	if cause != nil {
		evt = h.log.Warn().Err(cause)
	}
	evt.Str("stream_id", st.ID()).Msg("Stream left")
}

type relayListener struct {
	hub    *Hub
	st     *stream.MessageStream
	joined time.Time
}

func (l *relayListener) MessageRead(payload []byte) {
	l.hub.relay(l.st, payload)
	_ = l.st.Request(1)
}

func (l *relayListener) OnReady() {
	l.hub.log.Debug().Str("stream_id", l.st.ID()).Msg("Stream writable")
}

func (l *relayListener) OnClose(err error) {
	l.hub.remove(l.st, l.joined, err)
}
