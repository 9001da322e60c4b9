//go:build (darwin || linux) && !noav1

// AV1 decoding via libmedia_av1 (libaom) using purego. The library is
// searched like libmedia_vpx, with MEDIA_AV1_LIB_PATH as the explicit path.

package playback

import "github.com/ebitengine/purego"

var av1API = &planarAPI{codec: VideoCodecAV1}

func init() {
	av1API.lib = &nativeLib{
		base:    "media_av1",
		envPath: "MEDIA_AV1_LIB_PATH",
		symbols: func(handle uintptr) error {
			purego.RegisterLibFunc(&av1API.create, handle, "media_av1_decoder_create")
			purego.RegisterLibFunc(&av1API.decode, handle, "media_av1_decoder_decode")
			purego.RegisterLibFunc(&av1API.reset, handle, "media_av1_decoder_reset")
			purego.RegisterLibFunc(&av1API.destroy, handle, "media_av1_decoder_destroy")
			purego.RegisterLibFunc(&av1API.getError, handle, "media_av1_get_error")
			purego.RegisterLibFunc(&av1API.available, handle, "media_av1_decoder_available")
			return nil
		},
	}

	if IsAV1DecoderAvailable() {
		RegisterVideoDecoder(VideoCodecAV1, func() (VideoDecoder, error) {
			return NewAV1Decoder(PlanarDecoderConfig{})
		})
	}
}

// IsAV1DecoderAvailable checks if libmedia_av1 is loadable and has a
// decoder.
func IsAV1DecoderAvailable() bool { return av1API.isAvailable() }

// NewAV1Decoder creates a decoder for AV1 temporal units in low overhead
// bitstream format.
func NewAV1Decoder(config PlanarDecoderConfig) (*PlanarDecoder, error) {
	return newPlanarDecoder(av1API, config)
}
