package webrtc

import (
	"fmt"
	"strings"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	pion "github.com/pion/webrtc/v4"

	"github.com/thesyncim/playback"
)

// RTPReader yields the RTP packets of one track. *webrtc.TrackRemote
// implements it.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Track describes one incoming media track.
type Track struct {
	Reader    RTPReader
	MimeType  string // e.g. "video/VP8"
	ClockRate uint32 // The codec's default when zero
}

// TrackFromRemote describes a track received by a peer connection.
func TrackFromRemote(t *pion.TrackRemote) Track {
	c := t.Codec()
	return Track{Reader: t, MimeType: c.MimeType, ClockRate: c.ClockRate}
}

// IsVideo reports whether the track carries video.
func (t Track) IsVideo() bool {
	return strings.HasPrefix(strings.ToLower(t.MimeType), "video/")
}

// trackCodec binds a mime type to its depacketizer and keyframe test.
type trackCodec struct {
	depacketizer func() rtp.Depacketizer
	keyframe     func(sample []byte) bool
	clockRate    uint32
}

func videoTrackCodec(c playback.VideoCodec) (trackCodec, error) {
	tc := trackCodec{clockRate: uint32(c.ClockRate())}
	switch c {
	case playback.VideoCodecVP8:
		tc.depacketizer = func() rtp.Depacketizer { return &codecs.VP8Packet{} }
		tc.keyframe = vp8Keyframe
	case playback.VideoCodecVP9:
		tc.depacketizer = func() rtp.Depacketizer { return &codecs.VP9Packet{} }
		tc.keyframe = vp9Keyframe
	case playback.VideoCodecH264:
		tc.depacketizer = func() rtp.Depacketizer { return &codecs.H264Packet{} }
		tc.keyframe = h264Keyframe
	default:
		return trackCodec{}, fmt.Errorf("rtp %s: %w", c, playback.ErrNotSupported)
	}
	return tc, nil
}

func audioTrackCodec(c playback.AudioCodec) (trackCodec, error) {
	tc := trackCodec{clockRate: uint32(c.ClockRate()), keyframe: func([]byte) bool { return true }}
	switch c {
	case playback.AudioCodecOpus:
		tc.depacketizer = func() rtp.Depacketizer { return &codecs.OpusPacket{} }
	case playback.AudioCodecG711A, playback.AudioCodecG711U:
		tc.depacketizer = func() rtp.Depacketizer { return &rawPacket{} }
	default:
		return trackCodec{}, fmt.Errorf("rtp %s: %w", c, playback.ErrNotSupported)
	}
	return tc, nil
}

// rawPacket depacketizes payloads that are complete frames, such as G.711.
type rawPacket struct{}

func (rawPacket) Unmarshal(payload []byte) ([]byte, error) {
	return append([]byte(nil), payload...), nil
}

func (rawPacket) IsPartitionHead([]byte) bool { return true }

func (rawPacket) IsPartitionTail(bool, []byte) bool { return true }

func vp8Keyframe(b []byte) bool {
	return len(b) > 0 && b[0]&0x01 == 0
}

func vp9Keyframe(b []byte) bool {
	if len(b) == 0 || b[0]>>6 != 0x2 {
		return false
	}
	profile := (b[0]>>5)&0x1 | (b[0]>>3)&0x2
	shift := uint(2)
	if profile == 3 {
		shift = 1
	}
	if (b[0]>>(shift+1))&0x1 == 1 { // show_existing_frame
		return false
	}
	return (b[0]>>shift)&0x1 == 0
}

// h264Keyframe reports whether an Annex B access unit holds an IDR slice.
func h264Keyframe(b []byte) bool {
	for i := 0; i+3 < len(b); i++ {
		if b[i] != 0 || b[i+1] != 0 {
			continue
		}
		if b[i+2] == 1 {
			if b[i+3]&0x1F == 5 {
				return true
			}
			i += 2
		}
	}
	return false
}

// unwrapper extends 32-bit RTP timestamps to a monotonic 64-bit timeline
// that starts at zero.
type unwrapper struct {
	started bool
	last    uint32
	ts      int64
}

func (u *unwrapper) unwrap(ts uint32) int64 {
	if !u.started {
		u.started, u.last = true, ts
		return 0
	}
	u.ts += int64(int32(ts - u.last))
	u.last = ts
	return u.ts
}
