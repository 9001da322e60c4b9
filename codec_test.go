package playback

import (
	"errors"
	"testing"
)

func TestVideoCodec_String(t *testing.T) {
	tests := []struct {
		codec VideoCodec
		want  string
	}{
		{VideoCodecVP8, "VP8"},
		{VideoCodecVP9, "VP9"},
		{VideoCodecH264, "H264"},
		{VideoCodecH265, "H265"},
		{VideoCodecAV1, "AV1"},
		{VideoCodecUnknown, "Unknown"},
		{VideoCodec(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.codec.String(); got != tt.want {
				t.Errorf("VideoCodec.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVideoCodecFromMime(t *testing.T) {
	tests := []struct {
		mime string
		want VideoCodec
	}{
		{"video/VP8", VideoCodecVP8},
		{"video/vp9", VideoCodecVP9},
		{"video/H264", VideoCodecH264},
		{"video/H265", VideoCodecH265},
		{"video/AV1", VideoCodecAV1},
		{"audio/opus", VideoCodecUnknown},
		{"", VideoCodecUnknown},
	}

	for _, tt := range tests {
		if got := VideoCodecFromMime(tt.mime); got != tt.want {
			t.Errorf("VideoCodecFromMime(%q) = %v, want %v", tt.mime, got, tt.want)
		}
	}
}

func TestAudioCodecFromMime(t *testing.T) {
	tests := []struct {
		mime string
		want AudioCodec
	}{
		{"audio/opus", AudioCodecOpus},
		{"audio/OPUS", AudioCodecOpus},
		{"audio/PCMA", AudioCodecG711A},
		{"audio/PCMU", AudioCodecG711U},
		{"audio/AAC", AudioCodecAAC},
		{"video/VP8", AudioCodecUnknown},
	}

	for _, tt := range tests {
		if got := AudioCodecFromMime(tt.mime); got != tt.want {
			t.Errorf("AudioCodecFromMime(%q) = %v, want %v", tt.mime, got, tt.want)
		}
	}
}

func TestCodecTimeBase(t *testing.T) {
	if got, want := VideoCodecVP8.TimeBase(), (Rational{1, 90000}); got != want {
		t.Errorf("VP8 time base = %v, want %v", got, want)
	}
	if got, want := AudioCodecOpus.TimeBase(), (Rational{1, 48000}); got != want {
		t.Errorf("Opus time base = %v, want %v", got, want)
	}
	if got, want := AudioCodecG711U.TimeBase(), (Rational{1, 8000}); got != want {
		t.Errorf("PCMU time base = %v, want %v", got, want)
	}
}

func TestDecoderRegistry(t *testing.T) {
	// H265 and AAC have no native decoder, so the test owns those slots.
	_, err := NewVideoDecoder(VideoCodecH265)
	if !errors.Is(err, ErrNotSupported) {
		t.Fatalf("unregistered video codec: got %v, want ErrNotSupported", err)
	}

	want := newVideoDecoder()
	RegisterVideoDecoder(VideoCodecH265, func() (VideoDecoder, error) { return want, nil })
	RegisterAudioDecoder(AudioCodecAAC, func() (AudioDecoder, error) { return newAudioDecoder(), nil })
	t.Cleanup(func() {
		globalDecoderRegistry.mu.Lock()
		delete(globalDecoderRegistry.video, VideoCodecH265)
		delete(globalDecoderRegistry.audio, AudioCodecAAC)
		globalDecoderRegistry.mu.Unlock()
	})

	got, err := NewVideoDecoder(VideoCodecH265)
	if err != nil {
		t.Fatalf("NewVideoDecoder: %v", err)
	}
	if got != VideoDecoder(want) {
		t.Errorf("NewVideoDecoder returned a different decoder")
	}
	if _, err := NewAudioDecoder(AudioCodecAAC); err != nil {
		t.Fatalf("NewAudioDecoder: %v", err)
	}

	found := false
	for _, c := range AvailableVideoDecoders() {
		if c == VideoCodecH265 {
			found = true
		}
	}
	if !found {
		t.Errorf("AvailableVideoDecoders() = %v, missing H265", AvailableVideoDecoders())
	}
}
