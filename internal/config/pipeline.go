package config

import (
	"github.com/MrWong99/recall/pkg/provider/stt"
	"github.com/MrWong99/recall/pkg/provider/tts"
	"github.com/MrWong99/recall/pkg/provider/vad"
)

// Detector converts the YAML tuning block into a vad.Config, filling in the
// pipeline defaults for unset fields.
func (c VADConfig) Detector() vad.Config {
	out := vad.Config{
		SampleRate:       16000,
		FrameSizeMs:      20,
		SpeechThreshold:  0.015,
		SilenceThreshold: 0.008,
		StartDebounceMs:  100,
		HangoverMs:       800,
		PreRollMs:        400,
	}
	if c.SampleRate > 0 {
		out.SampleRate = c.SampleRate
	}
	if c.FrameSizeMs > 0 {
		out.FrameSizeMs = c.FrameSizeMs
	}
	if c.SpeechThreshold > 0 {
		out.SpeechThreshold = c.SpeechThreshold
	}
	if c.SilenceThreshold > 0 {
		out.SilenceThreshold = c.SilenceThreshold
	}
	if c.StartDebounceMs > 0 {
		out.StartDebounceMs = c.StartDebounceMs
	}
	if c.HangoverMs > 0 {
		out.HangoverMs = c.HangoverMs
	}
	if c.PreRollMs > 0 {
		out.PreRollMs = c.PreRollMs
	}
	return out
}

// STTStream derives the transcription stream settings. The sample rate
// follows the VAD block so both consumers of the capture fan-out agree.
func (c *Config) STTStream() stt.StreamConfig {
	out := stt.StreamConfig{
		SampleRate: c.VAD.Detector().SampleRate,
		Channels:   1,
		Language:   "en-US",
	}
	if c.Providers.STT.Language != "" {
		out.Language = c.Providers.STT.Language
	}
	return out
}

// AssistantVoice builds the tts.Voice spoken for assistant turns.
func (c *Config) AssistantVoice() tts.Voice {
	return tts.Voice{
		ID:          c.Voice.VoiceID,
		Provider:    c.Voice.Provider,
		SpeedFactor: c.Voice.SpeedFactor,
	}
}
