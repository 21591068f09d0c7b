package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	apilog "github.com/compose-network/msgstream/log"
	"github.com/compose-network/msgstream/x/stream"
	"github.com/compose-network/msgstream/x/transport"
	"github.com/compose-network/msgstream/x/transport/tcp"
)

func main() {
	var (
		relayAddr string
		count     int
		interval  time.Duration
		compress  bool
		payload   string
		pretty    bool
		logLevel  string
	)
	flag.StringVar(&relayAddr, "relay-addr", "localhost:9090", "Relay server address")
	flag.IntVar(&count, "count", 10, "Number of messages to send")
	flag.DurationVar(&interval, "interval", 500*time.Millisecond, "Delay between messages")
	flag.BoolVar(&compress, "compress", false, "Compress outgoing messages")
	flag.StringVar(&payload, "payload", "hello", "Message payload prefix")
	flag.BoolVar(&pretty, "log-pretty", true, "Pretty console logs")
	flag.StringVar(&logLevel, "log-level", "debug", "Log level (trace,debug,info,...)")
	flag.Parse()

	logger := apilog.New(logLevel, pretty)
	log := logger.Module("test-app")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cfg := transport.DefaultConfig()
	client, err := tcp.Dial(ctx, relayAddr, cfg, nil, log.Logger)
	if err != nil {
		log.Error().Err(err).Str("addr", relayAddr).Msg("Dial failed")
		os.Exit(1)
	}
	defer client.Close()

	log.Info().
		Str("addr", relayAddr).
		Str("peer_encodings", strings.Join(client.PeerEncodings(), ",")).
		Msg("Connected to relay")

	received := make(chan []byte, count)
	closed := make(chan error, 1)

	st, err := client.OpenStream(&printListener{received: received, closed: closed}, stream.DefaultConfig(), nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open stream")
		os.Exit(1)
	}

	if compress {
		if err := st.SetMessageCompression(true); err != nil {
			log.Error().Err(err).Msg("Failed to enable compression")
			os.Exit(1)
		}
	}
	if err := st.Request(count); err != nil {
		log.Error().Err(err).Msg("Failed to grant credit")
		os.Exit(1)
	}

	for i := 0; i < count; i++ {
		msg := fmt.Sprintf("%s-%d", payload, i)
		if err := st.WriteMessage([]byte(msg)); err != nil {
			log.Error().Err(err).Int("seq", i).Msg("Write failed")
			os.Exit(1)
		}
		if err := st.Flush(); err != nil {
			log.Error().Err(err).Int("seq", i).Msg("Flush failed")
			os.Exit(1)
		}
		log.Debug().Str("msg", msg).Bool("ready", st.IsReady()).Msg("Sent")

		select {
		case echo := <-received:
			log.Info().Str("echo", string(echo)).Msg("Received")
		case err := <-closed:
			log.Error().Err(err).Msg("Stream closed early")
			os.Exit(1)
		case <-ctx.Done():
			log.Error().Msg("Timed out waiting for echo")
			os.Exit(1)
		}

		time.Sleep(interval)
	}

	snap := st.Snapshot()
	log.Info().
		Str("stream_id", snap.ID).
		Str("encoding", snap.Encoding).
		Int64("credit", snap.Credit).
		Msg("Done")
}

type printListener struct {
	received chan []byte
	closed   chan error
}

func (l *printListener) MessageRead(payload []byte) {
	msg := make([]byte, len(payload))
	copy(msg, payload)
	l.received <- msg
}

func (l *printListener) OnReady() {}

func (l *printListener) OnClose(err error) {
	select {
	case l.closed <- err:
	default:
	}
}
