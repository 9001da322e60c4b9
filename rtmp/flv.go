package rtmp

import (
	"errors"
	"fmt"
)

// FLV codec identifiers carried in RTMP video and audio messages.
const (
	flvCodecAVC = 7 // H.264

	flvSoundMP3 = 2
	flvSoundAAC = 10

	flvFrameKey = 1

	avcSequenceHeader = 0
	avcNALU           = 1

	aacSequenceHeader = 0
	aacRaw            = 1
)

var errShortTag = errors.New("flv tag too short")

type videoTag struct {
	frameType  byte
	codecID    byte
	packetType byte  // AVC only
	cts        int32 // Composition time offset in ms, AVC only
	body       []byte
}

// parseVideoTag splits an FLV video tag header from its body.
func parseVideoTag(data []byte) (videoTag, error) {
	if len(data) < 1 {
		return videoTag{}, errShortTag
	}
	tag := videoTag{
		frameType: (data[0] >> 4) & 0x0F,
		codecID:   data[0] & 0x0F,
	}
	if tag.codecID != flvCodecAVC {
		tag.body = data[1:]
		return tag, nil
	}
	if len(data) < 5 {
		return videoTag{}, errShortTag
	}
	tag.packetType = data[1]
	cts := int32(data[2])<<16 | int32(data[3])<<8 | int32(data[4])
	if cts&0x800000 != 0 { // Sign-extend the 24-bit offset
		cts -= 1 << 24
	}
	tag.cts = cts
	tag.body = data[5:]
	return tag, nil
}

type audioTag struct {
	soundFormat byte
	packetType  byte // AAC only
	body        []byte
}

// parseAudioTag splits an FLV audio tag header from its body.
func parseAudioTag(data []byte) (audioTag, error) {
	if len(data) < 1 {
		return audioTag{}, errShortTag
	}
	tag := audioTag{soundFormat: (data[0] >> 4) & 0x0F}
	if tag.soundFormat != flvSoundAAC {
		tag.body = data[1:]
		return tag, nil
	}
	if len(data) < 2 {
		return audioTag{}, errShortTag
	}
	tag.packetType = data[1]
	tag.body = data[2:]
	return tag, nil
}

// avcConfig holds the parameter sets of an AVCDecoderConfigurationRecord.
type avcConfig struct {
	sps, pps   []byte
	lengthSize int // Bytes per NALU length prefix
}

// parseAVCConfig reads SPS, PPS and the NALU length size from an
// AVCDecoderConfigurationRecord.
func parseAVCConfig(data []byte) (avcConfig, error) {
	if len(data) < 8 {
		return avcConfig{}, errShortTag
	}
	cfg := avcConfig{lengthSize: int(data[4]&0x03) + 1}

	offset := 5
	numSPS := int(data[offset] & 0x1F)
	offset++
	for i := 0; i < numSPS && offset+2 <= len(data); i++ {
		length := int(data[offset])<<8 | int(data[offset+1])
		offset += 2
		if offset+length > len(data) {
			return avcConfig{}, fmt.Errorf("sps length %d overflows record", length)
		}
		if cfg.sps == nil {
			cfg.sps = append([]byte(nil), data[offset:offset+length]...)
		}
		offset += length
	}

	if offset >= len(data) {
		return avcConfig{}, errors.New("avc record has no pps")
	}
	numPPS := int(data[offset])
	offset++
	for i := 0; i < numPPS && offset+2 <= len(data); i++ {
		length := int(data[offset])<<8 | int(data[offset+1])
		offset += 2
		if offset+length > len(data) {
			return avcConfig{}, fmt.Errorf("pps length %d overflows record", length)
		}
		if cfg.pps == nil {
			cfg.pps = append([]byte(nil), data[offset:offset+length]...)
		}
		offset += length
	}

	if cfg.sps == nil || cfg.pps == nil {
		return avcConfig{}, errors.New("avc record misses sps or pps")
	}
	return cfg, nil
}

// splitNALUs splits length-prefixed NAL units.
func splitNALUs(data []byte, lengthSize int) [][]byte {
	var nalus [][]byte
	for offset := 0; offset+lengthSize <= len(data); {
		length := 0
		for i := 0; i < lengthSize; i++ {
			length = length<<8 | int(data[offset+i])
		}
		offset += lengthSize
		if length <= 0 || offset+length > len(data) {
			break
		}
		nalus = append(nalus, data[offset:offset+length])
		offset += length
	}
	return nalus
}

// annexB joins NAL units with start codes, prefixing SPS and PPS on
// keyframes so a decoder can start from any of them.
func annexB(nalus [][]byte, cfg avcConfig, isKey bool) []byte {
	sc := []byte{0, 0, 0, 1}

	size := 0
	for _, nalu := range nalus {
		size += len(sc) + len(nalu)
	}
	if isKey {
		size += 2*len(sc) + len(cfg.sps) + len(cfg.pps)
	}
	out := make([]byte, 0, size)

	if isKey && cfg.sps != nil && cfg.pps != nil {
		out = append(out, sc...)
		out = append(out, cfg.sps...)
		out = append(out, sc...)
		out = append(out, cfg.pps...)
	}
	for _, nalu := range nalus {
		out = append(out, sc...)
		out = append(out, nalu...)
	}
	return out
}

// aacConfig is the part of an AudioSpecificConfig needed for ADTS.
type aacConfig struct {
	objectType int
	freqIndex  int
	channels   int
}

var aacSampleRates = [...]int{96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050, 16000, 12000, 11025, 8000, 7350}

// SampleRate returns the sampling frequency in Hz.
func (c aacConfig) SampleRate() int {
	if c.freqIndex < len(aacSampleRates) {
		return aacSampleRates[c.freqIndex]
	}
	return 0
}

func parseAACConfig(data []byte) (aacConfig, error) {
	if len(data) < 2 {
		return aacConfig{}, errShortTag
	}
	cfg := aacConfig{
		objectType: int(data[0] >> 3),
		freqIndex:  int(data[0]&0x07)<<1 | int(data[1]>>7),
		channels:   int(data[1]>>3) & 0x0F,
	}
	if cfg.objectType == 0 || cfg.freqIndex >= len(aacSampleRates) {
		return aacConfig{}, fmt.Errorf("unsupported audio specific config %x", data[:2])
	}
	return cfg, nil
}

// adts prefixes a raw AAC frame with an ADTS header.
func adts(cfg aacConfig, frame []byte) []byte {
	size := len(frame) + 7
	out := make([]byte, 7, size)
	out[0] = 0xFF
	out[1] = 0xF1 // MPEG-4, no CRC
	out[2] = byte((cfg.objectType-1)&0x03)<<6 | byte(cfg.freqIndex&0x0F)<<2 | byte(cfg.channels>>2)&0x01
	out[3] = byte(cfg.channels&0x03)<<6 | byte(size>>11)&0x03
	out[4] = byte(size >> 3)
	out[5] = byte(size&0x07)<<5 | 0x1F
	out[6] = 0xFC
	return append(out, frame...)
}
