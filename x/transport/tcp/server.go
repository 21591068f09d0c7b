package tcp

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/compose-network/msgstream/x/codec"
	"github.com/compose-network/msgstream/x/stream"
	"github.com/compose-network/msgstream/x/transport"
)

// StreamHandler supplies a listener for each accepted stream. The listener
// may capture the stream to grant credit and write responses.
type StreamHandler interface {
	OnStream(st *stream.MessageStream) stream.Listener
}

// Server accepts TCP connections and runs one message stream per connection.
// Each connection's read goroutine becomes its stream's I/O context.
type Server struct {
	cfg           transport.Config
	scfg          stream.Config
	log           zerolog.Logger
	handler       StreamHandler
	compressors   *codec.CompressorRegistry
	decompressors *codec.DecompressorRegistry

	mtx      sync.Mutex
	ln       net.Listener
	sessions map[string]*session
}

type session struct {
	conn *Connection
	st   *stream.MessageStream
}

// NewServer creates a stream server. Nil registries default to the built-ins.
func NewServer(
	cfg transport.Config,
	scfg stream.Config,
	handler StreamHandler,
	compressors *codec.CompressorRegistry,
	decompressors *codec.DecompressorRegistry,
	log zerolog.Logger,
) *Server {
	if compressors == nil {
		compressors = codec.DefaultCompressorRegistry()
	}
	if decompressors == nil {
		decompressors = codec.DefaultDecompressorRegistry()
	}

	return &Server{
		cfg:           cfg,
		scfg:          scfg,
		log:           log.With().Str("component", "tcp-server").Logger(),
		handler:       handler,
		compressors:   compressors,
		decompressors: decompressors,
		sessions:      make(map[string]*session),
	}
}

// Start listens and accepts until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}

	s.mtx.Lock()
	s.ln = ln
	s.mtx.Unlock()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("Stream server listening")

	for {
		netConn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.log.Info().Msg("Stream server stopped")
				return nil
			}
			return err
		}

		if s.cfg.MaxConnections > 0 && s.sessionCount() >= s.cfg.MaxConnections {
			s.log.Warn().
				Str("remote_addr", netConn.RemoteAddr().String()).
				Msg("Connection limit reached, rejecting")
			_ = netConn.Close()
			continue
		}

		go s.handleConn(netConn)
	}
}

// Addr returns the bound listen address, or empty before Start.
func (s *Server) Addr() string {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop closes the listener and all live sessions. Idempotent.
func (s *Server) Stop() {
	s.mtx.Lock()
	ln := s.ln
	s.ln = nil
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mtx.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	for _, sess := range sessions {
		_ = sess.st.Close(nil)
		_ = sess.conn.Close()
	}
}

// Snapshots returns diagnostics for every live stream.
func (s *Server) Snapshots() []stream.Snapshot {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	out := make([]stream.Snapshot, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.st.Snapshot())
	}
	return out
}

func (s *Server) handleConn(netConn net.Conn) {
	id := uuid.NewString()
	conn := NewConnection(netConn, id, s.cfg, s.log)

	// Handshake: advertise what we can decode, learn what the peer can.
	if err := conn.SendAdvertisement(s.decompressors.Names()); err != nil {
		s.log.Warn().Err(err).Msg("Handshake send failed")
		_ = conn.Close()
		return
	}
	peerEncodings, err := conn.ReadAdvertisement()
	if err != nil {
		s.log.Warn().Err(err).Msg("Handshake read failed")
		_ = conn.Close()
		return
	}

	st := stream.New(id, conn, nil, s.scfg)
	if err := s.configureStream(st, peerEncodings); err != nil {
		s.log.Error().Err(err).Msg("Stream configuration failed")
		_ = conn.Close()
		return
	}

	st.SetListener(s.handler.OnStream(st))
	if err := st.Start(); err != nil {
		s.log.Error().Err(err).Msg("Stream start failed")
		_ = conn.Close()
		return
	}
	conn.Attach(st)

	// Prime delivery credit; the listener keeps the window open from here.
	if s.cfg.InitialCredit > 0 {
		if err := st.Request(s.cfg.InitialCredit); err != nil {
			s.log.Error().Err(err).Msg("Initial credit grant failed")
			_ = conn.Close()
			return
		}
	}

	s.mtx.Lock()
	s.sessions[id] = &session{conn: conn, st: st}
	s.mtx.Unlock()

	s.log.Info().
		Str("conn_id", id).
		Str("remote_addr", netConn.RemoteAddr().String()).
		Strs("peer_encodings", peerEncodings).
		Msg("Stream accepted")

	serveErr := conn.Serve()
	_ = st.Close(normalizeEOF(serveErr))
	_ = conn.Close()

	s.mtx.Lock()
	delete(s.sessions, id)
	s.mtx.Unlock()
}

func (s *Server) configureStream(st *stream.MessageStream, peerEncodings []string) error {
	if err := st.SetCompressorRegistry(s.compressors); err != nil {
		return err
	}
	if err := st.SetDecompressorRegistry(s.decompressors); err != nil {
		return err
	}
	_, err := st.PickCompressor(peerEncodings)
	return err
}

func (s *Server) sessionCount() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.sessions)
}

// normalizeEOF maps orderly connection teardown to a clean stream close.
func normalizeEOF(err error) error {
	if err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
