//go:build ffmpeg

package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/asticode/go-astiav"

	"github.com/thesyncim/playback"
)

// Demuxer reads packets from a container or network source. It implements
// playback.PacketReader.
type Demuxer struct {
	fc      *astiav.FormatContext
	streams playback.StreamMap

	mu     sync.Mutex
	closed bool
}

// OpenDemuxer opens url and probes its streams. options are passed to
// avformat_open_input (e.g. "rtsp_transport": "tcp").
func OpenDemuxer(url string, options map[string]string) (*Demuxer, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, errors.New("alloc format context failed")
	}

	dict := astiav.NewDictionary()
	defer dict.Free()
	for k, v := range options {
		if err := dict.Set(k, v, 0); err != nil {
			fc.Free()
			return nil, fmt.Errorf("set option %s: %w", k, err)
		}
	}

	if err := fc.OpenInput(url, nil, dict); err != nil {
		fc.Free()
		return nil, fmt.Errorf("open input %s: %w", url, err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.CloseInput()
		fc.Free()
		return nil, fmt.Errorf("find stream info: %w", err)
	}

	d := &Demuxer{fc: fc, streams: playback.NewStreamMap()}
	for _, s := range fc.Streams() {
		idx := playback.StreamIndex(s.Index())
		switch s.CodecParameters().MediaType() {
		case astiav.MediaTypeVideo:
			if d.streams.Video == playback.NoStream {
				d.streams.Video = idx
			}
		case astiav.MediaTypeAudio:
			if d.streams.Audio == playback.NoStream {
				d.streams.Audio = idx
			}
		case astiav.MediaTypeSubtitle:
			if d.streams.Subtitle == playback.NoStream {
				d.streams.Subtitle = idx
			}
		}
	}
	return d, nil
}

// Streams returns the first video, audio and subtitle stream of the source.
func (d *Demuxer) Streams() playback.StreamMap { return d.streams }

// TimeBase returns the time base of stream idx.
func (d *Demuxer) TimeBase(idx playback.StreamIndex) playback.Rational {
	if s := d.stream(idx); s != nil {
		return rational(s.TimeBase())
	}
	return playback.Rational{}
}

func (d *Demuxer) stream(idx playback.StreamIndex) *astiav.Stream {
	if idx == playback.NoStream {
		return nil
	}
	for _, s := range d.fc.Streams() {
		if s.Index() == int(idx) {
			return s
		}
	}
	return nil
}

// ReadPacket returns the next packet. The packet wraps a native AVPacket in
// Opaque and frees it on Release. End of stream is reported as io.EOF.
func (d *Demuxer) ReadPacket(ctx context.Context) (*playback.Packet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, io.ErrClosedPipe
	}

	pkt := astiav.AllocPacket()
	if err := d.fc.ReadFrame(pkt); err != nil {
		pkt.Free()
		if errors.Is(err, astiav.ErrEof) {
			return nil, io.EOF
		}
		return nil, err
	}

	p := playback.NewPacket(playback.StreamIndex(pkt.StreamIndex()), pkt.Pts(), pkt.Dts(), pkt.Data(), pkt.Free)
	p.Duration = pkt.Duration()
	p.Keyframe = pkt.Flags().Has(astiav.PacketFlagKey)
	p.Opaque = pkt
	return p, nil
}

// Close closes the input. Packets already handed out stay valid until
// released.
func (d *Demuxer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.fc.CloseInput()
	d.fc.Free()
	return nil
}
