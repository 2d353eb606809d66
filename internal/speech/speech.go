// Package speech adapts OpenAI-compatible audio endpoints for
// transcription (Whisper) and synthesis.
package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// MaxAudioBytes is the largest audio payload accepted for transcription.
// Checked before any network call.
const MaxAudioBytes = 25 * 1024 * 1024

// ErrAudioTooLarge is returned when an audio buffer exceeds MaxAudioBytes.
var ErrAudioTooLarge = fmt.Errorf("audio file too large (max %dMB)", MaxAudioBytes/(1024*1024))

// Transcriber converts recorded audio into plain text.
type Transcriber struct {
	api   *openai.Client
	model string
}

// NewTranscriber creates a speech-to-text adapter.
func NewTranscriber(baseURL, apiKey, modelName string) *Transcriber {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Transcriber{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// ValidateAudio checks size limits on a raw audio buffer.
func ValidateAudio(audio []byte) error {
	if len(audio) == 0 {
		return fmt.Errorf("empty audio buffer")
	}
	if len(audio) > MaxAudioBytes {
		return ErrAudioTooLarge
	}
	return nil
}

// Transcribe converts an audio buffer into text. The filename carries the
// container format hint (e.g. "recording.webm") to the API.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if err := ValidateAudio(audio); err != nil {
		return "", err
	}
	if filename == "" {
		filename = "audio.webm"
	}

	resp, err := t.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:       t.model,
		FilePath:    filename,
		Reader:      bytes.NewReader(audio),
		Language:    "en",
		Temperature: 0,
		Format:      openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("speech-to-text: %w", err)
	}
	return resp.Text, nil
}

// Synthesizer converts text into an audio buffer for playback.
type Synthesizer struct {
	api   *openai.Client
	model openai.SpeechModel
	voice openai.SpeechVoice
}

// NewSynthesizer creates a text-to-speech adapter.
func NewSynthesizer(baseURL, apiKey, modelName, voice string) *Synthesizer {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Synthesizer{
		api:   openai.NewClientWithConfig(config),
		model: openai.SpeechModel(modelName),
		voice: openai.SpeechVoice(voice),
	}
}

// MIMEType reports the media type of synthesized audio.
func (s *Synthesizer) MIMEType() string { return "audio/mpeg" }

// Synthesize converts text into an audio buffer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty synthesis text")
	}

	resp, err := s.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("text-to-speech: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read synthesized audio: %w", err)
	}
	return audio, nil
}

// SynthesizeChunks splits long text at sentence boundaries and synthesizes
// one chunk at a time, invoking fn with each audio buffer in order.
func (s *Synthesizer) SynthesizeChunks(ctx context.Context, text string, fn func([]byte) error) error {
	for _, chunk := range SplitText(text, maxChunkLen) {
		audio, err := s.Synthesize(ctx, chunk)
		if err != nil {
			return err
		}
		if err := fn(audio); err != nil {
			return err
		}
	}
	return nil
}

const maxChunkLen = 500

// SplitText breaks text into chunks of at most maxLen characters,
// preferring sentence boundaries. A single sentence longer than maxLen
// becomes its own chunk.
func SplitText(text string, maxLen int) []string {
	sentences := splitSentences(text)
	var chunks []string
	var current strings.Builder

	for _, sentence := range sentences {
		if current.Len() > 0 && current.Len()+len(sentence) > maxLen {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
		current.WriteString(sentence)
	}
	if strings.TrimSpace(current.String()) != "" {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}
	return chunks
}

func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			// Consume the run of terminal punctuation.
			for i+1 < len(text) && (text[i+1] == '.' || text[i+1] == '!' || text[i+1] == '?') {
				i++
			}
			sentences = append(sentences, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}
