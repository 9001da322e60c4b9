//go:build (darwin || linux) && !noh264

// H.264 decoding via libmedia_h264 (OpenH264) using purego. The library is
// searched like libmedia_vpx, with MEDIA_H264_LIB_PATH as the explicit path.

package playback

import "github.com/ebitengine/purego"

var h264API = &planarAPI{codec: VideoCodecH264}

func init() {
	h264API.lib = &nativeLib{
		base:    "media_h264",
		envPath: "MEDIA_H264_LIB_PATH",
		symbols: func(handle uintptr) error {
			purego.RegisterLibFunc(&h264API.create, handle, "media_h264_decoder_create")
			purego.RegisterLibFunc(&h264API.decode, handle, "media_h264_decoder_decode")
			purego.RegisterLibFunc(&h264API.reset, handle, "media_h264_decoder_reset")
			purego.RegisterLibFunc(&h264API.destroy, handle, "media_h264_decoder_destroy")
			purego.RegisterLibFunc(&h264API.getError, handle, "media_h264_get_error")
			purego.RegisterLibFunc(&h264API.available, handle, "media_h264_decoder_available")
			return nil
		},
	}

	if IsH264DecoderAvailable() {
		RegisterVideoDecoder(VideoCodecH264, func() (VideoDecoder, error) {
			return NewH264Decoder(PlanarDecoderConfig{})
		})
	}
}

// IsH264DecoderAvailable checks if libmedia_h264 is loadable and has a
// decoder.
func IsH264DecoderAvailable() bool { return h264API.isAvailable() }

// NewH264Decoder creates a decoder for Annex B H.264 access units. SPS and
// PPS must arrive in band.
func NewH264Decoder(config PlanarDecoderConfig) (*PlanarDecoder, error) {
	return newPlanarDecoder(h264API, config)
}
