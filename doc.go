// Package playback decodes a demultiplexed media source into two bounded
// frame queues, one for video and one for audio, on a dedicated goroutine.
//
// The caller opens the source and its decoders and hands them over in a
// Session. The decode goroutine reads packets, routes them by stream,
// decodes them, converts video frames to the output layout and queues the
// frames for a renderer. An AudioClock follows the presentation time of the
// last audio packet so video frames can be presented against it.
//
// # Architecture
//
//	PacketReader -> Router -> Decoder -> Converter -> FrameQueue (video)
//	                       -> Decoder -------------> FrameQueue (audio)
//	                       -> AudioClock
//
// A full queue blocks the decoder unless the other queue is empty; then the
// frame is force-pushed past capacity so neither consumer starves while the
// other one waits.
//
// # Sources
//
// Sub-packages provide sources: ffmpeg opens files and URLs (build tag
// ffmpeg), rtmp accepts RTMP publishers and webrtc reads pion remote tracks.
//
// # Native Libraries
//
// VP8/VP9, H.264, AV1 and Opus decoders load libmedia_vpx, libmedia_h264,
// libmedia_av1 and libstream_opus with purego at runtime. Set
// PLAYBACK_LIB_PATH to the directory containing them, or MEDIA_VPX_LIB_PATH,
// MEDIA_H264_LIB_PATH, MEDIA_AV1_LIB_PATH and STREAM_OPUS_LIB_PATH to the
// files. Decoders
// register themselves only when their library is present.
//
// # Build Tags
//
//   - novpx, noh264, noav1, noopus: disable a native decoder
//   - ffmpeg: build the FFmpeg source, decoders and scaler
package playback
