package playback

// Decoder is a codec context that has already been opened by its owner.
//
// SendPacket submits one compressed packet. ReceiveFrame returns the next
// decoded frame, ErrNeedMoreInput when more packets are required, or io.EOF
// once the decoder has been fully drained. The pipeline never creates or
// closes decoders.
type Decoder[F any] interface {
	SendPacket(pkt *Packet) error
	ReceiveFrame() (F, error)
}

// VideoDecoder decodes video packets.
type VideoDecoder = Decoder[*VideoFrame]

// AudioDecoder decodes audio packets.
type AudioDecoder = Decoder[*AudioFrame]
