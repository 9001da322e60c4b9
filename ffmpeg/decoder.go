//go:build ffmpeg

package ffmpeg

import (
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astiav"

	"github.com/thesyncim/playback"
)

// DecoderOptions configures a codec context.
type DecoderOptions struct {
	Threads int               // Decoder threads, FFmpeg's default when zero
	Options map[string]string // Private codec options
}

type codec struct {
	cc *astiav.CodecContext
}

func openCodec(d *Demuxer, idx playback.StreamIndex, opts DecoderOptions) (codec, error) {
	s := d.stream(idx)
	if s == nil {
		return codec{}, fmt.Errorf("stream %d not found", idx)
	}
	par := s.CodecParameters()
	return newCodec(par.CodecID(), opts, func(cc *astiav.CodecContext) error {
		if err := par.ToCodecContext(cc); err != nil {
			return fmt.Errorf("copy codec parameters: %w", err)
		}
		return nil
	})
}

// newCodec opens a decoder for id. setup fills the context before it is
// opened.
func newCodec(id astiav.CodecID, opts DecoderOptions, setup func(*astiav.CodecContext) error) (codec, error) {
	dec := astiav.FindDecoder(id)
	if dec == nil {
		return codec{}, fmt.Errorf("no decoder for %s: %w", id, playback.ErrNotSupported)
	}
	cc := astiav.AllocCodecContext(dec)
	if cc == nil {
		return codec{}, errors.New("alloc codec context failed")
	}
	if setup != nil {
		if err := setup(cc); err != nil {
			cc.Free()
			return codec{}, err
		}
	}
	if opts.Threads > 0 {
		cc.SetThreadCount(opts.Threads)
	}

	dict := astiav.NewDictionary()
	defer dict.Free()
	for k, v := range opts.Options {
		if err := dict.Set(k, v, 0); err != nil {
			cc.Free()
			return codec{}, fmt.Errorf("set option %s: %w", k, err)
		}
	}
	if err := cc.Open(dec, dict); err != nil {
		cc.Free()
		return codec{}, fmt.Errorf("open %s decoder: %w", dec.Name(), err)
	}
	return codec{cc: cc}, nil
}

// send submits pkt, or starts draining when pkt is nil.
func (c codec) send(pkt *playback.Packet) error {
	if c.cc == nil {
		return errors.New("decoder closed")
	}
	if pkt == nil {
		return translate(c.cc.SendPacket(nil))
	}
	if native, ok := pkt.Opaque.(*astiav.Packet); ok {
		return translate(c.cc.SendPacket(native))
	}

	ap := astiav.AllocPacket()
	defer ap.Free()
	if err := ap.FromData(pkt.Data); err != nil {
		return fmt.Errorf("wrap packet: %w", err)
	}
	ap.SetPts(pkt.PTS)
	ap.SetDts(pkt.DTS)
	return translate(c.cc.SendPacket(ap))
}

// receive returns the next native frame. The caller frees it.
func (c codec) receive() (*astiav.Frame, error) {
	if c.cc == nil {
		return nil, errors.New("decoder closed")
	}
	f := astiav.AllocFrame()
	if err := c.cc.ReceiveFrame(f); err != nil {
		f.Free()
		return nil, translate(err)
	}
	return f, nil
}

func (c *codec) close() {
	if c.cc != nil {
		c.cc.Free()
		c.cc = nil
	}
}

// translate maps FFmpeg's EAGAIN and EOF to the playback decoder contract.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, astiav.ErrEagain):
		return playback.ErrNeedMoreInput
	case errors.Is(err, astiav.ErrEof):
		return io.EOF
	}
	return err
}

// VideoDecoder decodes one video stream of a Demuxer.
//
// I420 and NV12 pictures are copied into Go memory. Every frame also keeps
// the native AVFrame in Opaque until Release, so Scaler can convert any
// pixel format the codec outputs.
type VideoDecoder struct {
	codec
}

// NewVideoDecoder opens a decoder for stream idx of d.
func NewVideoDecoder(d *Demuxer, idx playback.StreamIndex, opts DecoderOptions) (*VideoDecoder, error) {
	c, err := openCodec(d, idx, opts)
	if err != nil {
		return nil, err
	}
	return &VideoDecoder{codec: c}, nil
}

// SendPacket implements playback.Decoder.
func (d *VideoDecoder) SendPacket(pkt *playback.Packet) error { return d.send(pkt) }

// ReceiveFrame implements playback.Decoder.
func (d *VideoDecoder) ReceiveFrame() (*playback.VideoFrame, error) {
	f, err := d.receive()
	if err != nil {
		return nil, err
	}

	out := &playback.VideoFrame{
		Width:    f.Width(),
		Height:   f.Height(),
		Format:   pixelFormat(f.PixelFormat()),
		PTS:      f.Pts(),
		DTS:      f.PktDts(),
		Keyframe: f.PictureType() == astiav.PictureTypeI,
		Opaque:   f,
	}
	out.SetRelease(f.Free)

	switch out.Format {
	case playback.PixelFormatI420, playback.PixelFormatNV12:
		n, err := f.ImageBufferSize(1)
		if err != nil {
			out.Release()
			return nil, fmt.Errorf("image buffer size: %w", err)
		}
		buf := make([]byte, n)
		if _, err := f.ImageCopyToBuffer(buf, 1); err != nil {
			out.Release()
			return nil, fmt.Errorf("copy image: %w", err)
		}
		out.Data, out.Stride = planes(buf, out.Format, out.Width, out.Height)
	default:
		// Only a native converter can read this frame.
		out.Format = playback.PixelFormatUnknown
	}
	return out, nil
}

// Close frees the codec context.
func (d *VideoDecoder) Close() error {
	d.close()
	return nil
}

// AudioDecoder decodes one audio stream of a Demuxer into S16, F32 or
// planar F32 frames.
type AudioDecoder struct {
	codec
}

// NewAudioDecoder opens a decoder for stream idx of d.
func NewAudioDecoder(d *Demuxer, idx playback.StreamIndex, opts DecoderOptions) (*AudioDecoder, error) {
	c, err := openCodec(d, idx, opts)
	if err != nil {
		return nil, err
	}
	return &AudioDecoder{codec: c}, nil
}

// SendPacket implements playback.Decoder.
func (d *AudioDecoder) SendPacket(pkt *playback.Packet) error { return d.send(pkt) }

// ReceiveFrame implements playback.Decoder.
func (d *AudioDecoder) ReceiveFrame() (*playback.AudioFrame, error) {
	f, err := d.receive()
	if err != nil {
		return nil, err
	}
	defer f.Free()

	format, ok := audioFormat(f.SampleFormat())
	if !ok {
		return nil, fmt.Errorf("sample format %s: %w", f.SampleFormat(), playback.ErrUnsupportedFormat)
	}
	n, err := f.SamplesBufferSize(1)
	if err != nil {
		return nil, fmt.Errorf("samples buffer size: %w", err)
	}
	buf := make([]byte, n)
	if _, err := f.SamplesCopyToBuffer(buf, 1); err != nil {
		return nil, fmt.Errorf("copy samples: %w", err)
	}

	return &playback.AudioFrame{
		Data:        buf,
		SampleRate:  f.SampleRate(),
		Channels:    f.ChannelLayout().Channels(),
		SampleCount: f.NbSamples(),
		Format:      format,
		PTS:         f.Pts(),
		DTS:         f.PktDts(),
	}, nil
}

// Close frees the codec context.
func (d *AudioDecoder) Close() error {
	d.close()
	return nil
}
