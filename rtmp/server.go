package rtmp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	gortmp "github.com/yutopp/go-rtmp"
	rtmpmsg "github.com/yutopp/go-rtmp/message"

	"github.com/thesyncim/playback"
	"github.com/thesyncim/playback/logger"
)

// ErrServerClosed is returned by Accept after the server stopped.
var ErrServerClosed = errors.New("rtmp server closed")

// ServerConfig configures a Server.
type ServerConfig struct {
	Addr   string // Listen address, ":1935" when empty
	Buffer int    // Packets buffered per stream, 64 when zero
	Log    *logger.Logger
}

// Server accepts RTMP publishers. Every publish is handed out once through
// Accept.
type Server struct {
	cfg ServerConfig
	log *logger.Logger

	streams chan *Stream
	done    chan struct{}
	once    sync.Once

	mu  sync.Mutex
	srv *gortmp.Server
	ln  net.Listener
}

// NewServer creates a server. Call Serve to start listening.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":1935"
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	return &Server{
		cfg:     cfg,
		log:     logger.OrNop(cfg.Log).Component("rtmp"),
		streams: make(chan *Stream, 1),
		done:    make(chan struct{}),
	}
}

// Serve listens on the configured address until ctx is cancelled or Close
// is called.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("rtmp listen: %w", err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := gortmp.NewServer(&gortmp.ServerConfig{
		OnConnect: func(conn net.Conn) (io.ReadWriteCloser, *gortmp.ConnConfig) {
			s.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("RTMP connection")
			return conn, &gortmp.ConnConfig{
				Handler: s.newHandler(),
				ControlState: gortmp.StreamControlStateConfig{
					DefaultBandwidthWindowSize: 6 * 1024 * 1024,
				},
			}
		},
	})

	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		ln.Close()
		return nil
	default:
	}
	s.srv, s.ln = srv, ln
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("RTMP listening")
	err := srv.Serve(ln)
	select {
	case <-s.done:
		return nil
	default:
	}
	return err
}

// Addr returns the listening address, nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Accept waits for the next published stream.
func (s *Server) Accept(ctx context.Context) (*Stream, error) {
	select {
	case st := <-s.streams:
		return st, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrServerClosed
	}
}

// Close stops the listener. Streams already accepted end when their
// connection drops.
func (s *Server) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		close(s.done)
		srv, ln := s.srv, s.ln
		s.mu.Unlock()
		if srv != nil {
			err = srv.Close()
			ln.Close()
		}
	})
	return err
}

func (s *Server) newHandler() *handler {
	return &handler{server: s, log: s.log}
}

// handler serves one RTMP connection.
type handler struct {
	gortmp.DefaultHandler

	server *Server
	log    *logger.Logger

	stream *Stream
	avc    avcConfig
	hasAVC bool
	aac    aacConfig
	hasAAC bool

	warnedVideo bool
	warnedAudio bool
}

func (h *handler) OnPublish(_ *gortmp.StreamContext, _ uint32, cmd *rtmpmsg.NetStreamPublish) error {
	if h.stream != nil {
		return errors.New("connection is already publishing")
	}
	st := newStream(cmd.PublishingName, h.server.cfg.Buffer)
	select {
	case h.server.streams <- st:
	default:
		return errors.New("previous stream not accepted yet")
	}
	h.stream = st
	h.log.Info().Str("name", cmd.PublishingName).Msg("RTMP publish")
	return nil
}

func (h *handler) OnSetDataFrame(_ uint32, data *rtmpmsg.NetStreamSetDataFrame) error {
	h.log.Debug().Int("size", len(data.Payload)).Msg("RTMP metadata")
	return nil
}

func (h *handler) OnVideo(timestamp uint32, payload io.Reader) error {
	if h.stream == nil {
		return nil
	}
	data, err := io.ReadAll(payload)
	if err != nil {
		return err
	}
	tag, err := parseVideoTag(data)
	if err != nil {
		return nil
	}
	if tag.codecID != flvCodecAVC {
		if !h.warnedVideo {
			h.warnedVideo = true
			h.log.Warn().Uint8("codec", tag.codecID).Msg("Unsupported FLV video codec, video ignored")
		}
		return nil
	}

	switch tag.packetType {
	case avcSequenceHeader:
		cfg, err := parseAVCConfig(tag.body)
		if err != nil {
			h.log.Warn().Err(err).Msg("Bad AVC sequence header")
			return nil
		}
		h.avc, h.hasAVC = cfg, true
		h.stream.setVideoCodec(playback.VideoCodecH264)

	case avcNALU:
		if !h.hasAVC {
			return nil
		}
		nalus := splitNALUs(tag.body, h.avc.lengthSize)
		if len(nalus) == 0 {
			return nil
		}
		isKey := tag.frameType == flvFrameKey
		dts := int64(timestamp)
		pkt := playback.NewPacket(VideoStream, dts+int64(tag.cts), dts, annexB(nalus, h.avc, isKey), nil)
		pkt.Keyframe = isKey
		h.stream.push(pkt)
	}
	return nil
}

func (h *handler) OnAudio(timestamp uint32, payload io.Reader) error {
	if h.stream == nil {
		return nil
	}
	data, err := io.ReadAll(payload)
	if err != nil {
		return err
	}
	tag, err := parseAudioTag(data)
	if err != nil {
		return nil
	}

	ts := int64(timestamp)
	switch tag.soundFormat {
	case flvSoundAAC:
		switch tag.packetType {
		case aacSequenceHeader:
			cfg, err := parseAACConfig(tag.body)
			if err != nil {
				h.log.Warn().Err(err).Msg("Bad AAC sequence header")
				return nil
			}
			h.aac, h.hasAAC = cfg, true
			h.stream.setAudioCodec(playback.AudioCodecAAC, cfg.SampleRate(), cfg.channels)
		case aacRaw:
			if !h.hasAAC || len(tag.body) == 0 {
				return nil
			}
			pkt := playback.NewPacket(AudioStream, ts, ts, adts(h.aac, tag.body), nil)
			pkt.Keyframe = true
			h.stream.push(pkt)
		}

	case flvSoundMP3:
		if len(tag.body) == 0 {
			return nil
		}
		pkt := playback.NewPacket(AudioStream, ts, ts, tag.body, nil)
		pkt.Keyframe = true
		h.stream.push(pkt)

	default:
		if !h.warnedAudio {
			h.warnedAudio = true
			h.log.Warn().Uint8("format", tag.soundFormat).Msg("Unsupported FLV audio format, audio ignored")
		}
	}
	return nil
}

func (h *handler) OnClose() {
	if h.stream != nil {
		h.log.Info().Str("name", h.stream.Name).Msg("RTMP publisher disconnected")
		h.stream.Close()
	}
}
