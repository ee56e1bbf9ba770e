// Package audio provides the shared audio transport types for Recall and the
// hardware-session arbitration primitives the voice pipeline is built on.
//
// Two concerns live here:
//
//   - [Frame] is the atomic unit of audio moving through the pipeline: fixed-size
//     PCM chunks captured from the client connection, fanned out to the voice
//     activity detector and the transcriber, and produced by TTS synthesis.
//   - [SessionManager] models the exclusively-owned audio hardware session: at
//     most one of {record, playback} may be configured at a time, mirroring the
//     mobile platform's audio session rules.
package audio

import "time"

// Frame represents a single frame of PCM audio flowing through the pipeline.
type Frame struct {
	// PCM is raw little-endian 16-bit PCM data.
	PCM []byte

	// SampleRate in Hz (e.g., 16000 for the capture path).
	SampleRate int

	// Channels: 1 for mono capture, 2 for stereo playback.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the wall-clock length of the frame, derived from the PCM
// byte count, sample rate, and channel count (16-bit samples assumed).
// Returns 0 for a frame with missing format information.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.PCM) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
