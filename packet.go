package playback

import (
	"context"
	"fmt"
)

// StreamIndex identifies an elementary stream inside a demultiplexed source.
type StreamIndex int

// NoStream marks a stream that is not present in the source.
const NoStream StreamIndex = -1

// StreamKind classifies a stream index against a StreamMap.
type StreamKind int

const (
	StreamKindUnknown StreamKind = iota
	StreamKindVideo
	StreamKindAudio
	StreamKindSubtitle
)

func (k StreamKind) String() string {
	switch k {
	case StreamKindVideo:
		return "video"
	case StreamKindAudio:
		return "audio"
	case StreamKindSubtitle:
		return "subtitle"
	default:
		return "unknown"
	}
}

// StreamMap holds the stream indices discovered when the source was opened.
// Indices are read-only for the pipeline.
type StreamMap struct {
	Video    StreamIndex
	Audio    StreamIndex
	Subtitle StreamIndex
}

// NewStreamMap returns a map with every stream marked absent.
func NewStreamMap() StreamMap {
	return StreamMap{Video: NoStream, Audio: NoStream, Subtitle: NoStream}
}

// Classify returns which kind of stream idx refers to.
func (m StreamMap) Classify(idx StreamIndex) StreamKind {
	if idx == NoStream {
		return StreamKindUnknown
	}
	switch idx {
	case m.Video:
		return StreamKindVideo
	case m.Audio:
		return StreamKindAudio
	case m.Subtitle:
		return StreamKindSubtitle
	}
	return StreamKindUnknown
}

func (m StreamMap) String() string {
	return fmt.Sprintf("video=%d audio=%d subtitle=%d", m.Video, m.Audio, m.Subtitle)
}

// Packet is a unit of compressed data read from a source.
//
// A packet is owned by the pipeline for exactly one decode cycle and is
// released before the next read. Decoders must copy anything they keep.
type Packet struct {
	StreamIndex StreamIndex
	PTS         int64 // NoPTS when undefined
	DTS         int64 // NoPTS when undefined
	Duration    int64
	Keyframe    bool
	Data        []byte

	// Opaque carries an adapter-specific handle (e.g. a native packet) so a
	// matching decoder can avoid copying Data.
	Opaque any

	hook *releaseHook
}

// NewPacket creates a packet whose release runs fn once.
func NewPacket(idx StreamIndex, pts, dts int64, data []byte, release func()) *Packet {
	p := &Packet{StreamIndex: idx, PTS: pts, DTS: dts, Data: data}
	if release != nil {
		p.hook = &releaseHook{fn: release}
	}
	return p
}

// Release frees resources attached to the packet. Safe on nil and when
// called more than once.
func (p *Packet) Release() {
	if p != nil {
		p.hook.release()
	}
}

// HasPTS reports whether the packet carries a presentation timestamp.
func (p *Packet) HasPTS() bool { return p.PTS != NoPTS }

// PacketReader is an opened, demultiplexed source.
type PacketReader interface {
	// ReadPacket returns the next packet. It returns io.EOF at end of stream
	// and any other error for I/O failures.
	ReadPacket(ctx context.Context) (*Packet, error)
}

// PacketReaderFunc adapts a function to PacketReader.
type PacketReaderFunc func(ctx context.Context) (*Packet, error)

// ReadPacket implements PacketReader.
func (f PacketReaderFunc) ReadPacket(ctx context.Context) (*Packet, error) { return f(ctx) }
