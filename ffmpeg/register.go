//go:build ffmpeg

package ffmpeg

import (
	"github.com/asticode/go-astiav"

	"github.com/thesyncim/playback"
)

var videoCodecIDs = map[playback.VideoCodec]astiav.CodecID{
	playback.VideoCodecVP8:  astiav.CodecIDVp8,
	playback.VideoCodecVP9:  astiav.CodecIDVp9,
	playback.VideoCodecH264: astiav.CodecIDH264,
	playback.VideoCodecH265: astiav.CodecIDHevc,
	playback.VideoCodecAV1:  astiav.CodecIDAv1,
}

var audioCodecIDs = map[playback.AudioCodec]astiav.CodecID{
	playback.AudioCodecOpus:  astiav.CodecIDOpus,
	playback.AudioCodecG711A: astiav.CodecIDPcmAlaw,
	playback.AudioCodecG711U: astiav.CodecIDPcmMulaw,
	playback.AudioCodecAAC:   astiav.CodecIDAac,
}

// NewCodecVideoDecoder opens a decoder for a bitstream that carries its own
// configuration, such as H.264 Annex B with in-band parameter sets.
func NewCodecVideoDecoder(c playback.VideoCodec, opts DecoderOptions) (*VideoDecoder, error) {
	id, ok := videoCodecIDs[c]
	if !ok {
		return nil, playback.ErrNotSupported
	}
	dec, err := newCodec(id, opts, nil)
	if err != nil {
		return nil, err
	}
	return &VideoDecoder{codec: dec}, nil
}

// NewCodecAudioDecoder opens a decoder for c. Opus is decoded as 48 kHz
// stereo and G.711 as 8 kHz mono. AAC must arrive as ADTS.
func NewCodecAudioDecoder(c playback.AudioCodec, opts DecoderOptions) (*AudioDecoder, error) {
	id, ok := audioCodecIDs[c]
	if !ok {
		return nil, playback.ErrNotSupported
	}
	dec, err := newCodec(id, opts, func(cc *astiav.CodecContext) error {
		switch c {
		case playback.AudioCodecOpus:
			cc.SetSampleRate(48000)
			cc.SetChannelLayout(astiav.ChannelLayoutStereo)
		case playback.AudioCodecG711A, playback.AudioCodecG711U:
			cc.SetSampleRate(8000)
			cc.SetChannelLayout(astiav.ChannelLayoutMono)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &AudioDecoder{codec: dec}, nil
}

// FFmpeg backs every codec it can decode. The native VP8, VP9 and Opus
// decoders keep their registration when their libraries are present.
func init() {
	registered := map[playback.VideoCodec]bool{}
	for _, c := range playback.AvailableVideoDecoders() {
		registered[c] = true
	}
	for c, id := range videoCodecIDs {
		if registered[c] || astiav.FindDecoder(id) == nil {
			continue
		}
		c := c
		playback.RegisterVideoDecoder(c, func() (playback.VideoDecoder, error) {
			return NewCodecVideoDecoder(c, DecoderOptions{})
		})
	}

	registeredAudio := map[playback.AudioCodec]bool{}
	for _, c := range playback.AvailableAudioDecoders() {
		registeredAudio[c] = true
	}
	for c, id := range audioCodecIDs {
		if registeredAudio[c] || astiav.FindDecoder(id) == nil {
			continue
		}
		c := c
		playback.RegisterAudioDecoder(c, func() (playback.AudioDecoder, error) {
			return NewCodecAudioDecoder(c, DecoderOptions{})
		})
	}
}
