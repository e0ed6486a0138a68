package engines

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/bookvoice/internal/cache"
	"github.com/dgnsrekt/bookvoice/internal/observe"
	"github.com/dgnsrekt/bookvoice/pkg/tts"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// ErrMissingAPIKey is returned when no API key is configured
var ErrMissingAPIKey = errors.New("gemini: API key is required (set GEMINI_API_KEY or GOOGLE_API_KEY)")

// GeminiConfig holds configuration for the Gemini engine.
type GeminiConfig struct {
	APIKey string

	// Model and Voice default to tts.DefaultModel and tts.DefaultVoice
	Model string
	Voice string

	// BaseURL overrides the API endpoint
	BaseURL string

	// Timeout bounds each request, 0 for none
	Timeout time.Duration

	// RequestsPerMinute limits calls to the service, 0 for unlimited
	RequestsPerMinute int

	// Cache stores raw audio by model, voice and text (optional)
	Cache *cache.Manager

	// Metrics receives request instruments. Nil uses observe.DefaultMetrics.
	Metrics *observe.Metrics
}

// GeminiEngine synthesizes speech with the Gemini generateContent API,
// asking for an audio-only response spoken by a prebuilt voice.
type GeminiEngine struct {
	client  *genai.Client
	model   string
	voice   string
	timeout time.Duration
	limiter *rate.Limiter
	cache   *cache.Manager
	metrics *observe.Metrics
}

// NewGeminiEngine creates a Gemini engine
func NewGeminiEngine(ctx context.Context, config GeminiConfig) (*GeminiEngine, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.Model == "" {
		config.Model = tts.DefaultModel
	}
	if config.Voice == "" {
		config.Voice = tts.DefaultVoice
	}
	if config.Metrics == nil {
		config.Metrics = observe.DefaultMetrics()
	}

	cc := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1)
	}

	log.Info("Gemini engine initialized", "model", config.Model, "voice", config.Voice)
	return &GeminiEngine{
		client:  client,
		model:   config.Model,
		voice:   config.Voice,
		timeout: config.Timeout,
		limiter: limiter,
		cache:   config.Cache,
		metrics: config.Metrics,
	}, nil
}

// Name returns the engine name
func (e *GeminiEngine) Name() string {
	return "gemini"
}

// Synthesize returns 24 kHz mono s16le PCM for text. A response without
// inline audio yields tts.ErrNoAudio; transport and API failures are
// returned wrapped.
func (e *GeminiEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	key := cache.GenerateKey(e.model, e.voice, text)
	if e.cache != nil {
		if audio, level, ok := e.cache.Get(key); ok {
			log.Debug("Synthesis cache hit", "level", level, "bytes", len(audio))
			e.metrics.CacheHits.Add(ctx, 1)
			return audio, nil
		}
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	audio, err := e.generate(ctx, text)
	elapsed := time.Since(start).Seconds()

	switch {
	case errors.Is(err, tts.ErrNoAudio), errors.Is(err, tts.ErrInvalidAudioFormat):
		e.metrics.RecordSynthesis(ctx, e.Name(), "no_audio", elapsed)
		return nil, err
	case err != nil:
		e.metrics.RecordSynthesis(ctx, e.Name(), "error", elapsed)
		return nil, fmt.Errorf("gemini synthesis failed: %w", err)
	}
	e.metrics.RecordSynthesis(ctx, e.Name(), "ok", elapsed)

	log.Debug("Synthesized segment", "chars", len(text), "bytes", len(audio), "seconds", elapsed)
	if e.cache != nil {
		if err := e.cache.Put(key, audio); err != nil {
			log.Debug("Failed to cache audio", "error", err)
		}
	}
	return audio, nil
}

// generate performs one generateContent call and extracts the audio part
func (e *GeminiEngine) generate(ctx context.Context, text string) ([]byte, error) {
	resp, err := e.client.Models.GenerateContent(ctx, e.model, genai.Text(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: e.voice},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("%w: response has no candidates", tts.ErrNoAudio)
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.InlineData == nil {
			continue
		}
		if len(part.InlineData.Data) == 0 {
			return nil, fmt.Errorf("%w: empty inline data", tts.ErrNoAudio)
		}
		if err := checkMIMEType(part.InlineData.MIMEType); err != nil {
			return nil, err
		}
		return part.InlineData.Data, nil
	}
	return nil, fmt.Errorf("%w: response has no inline audio", tts.ErrNoAudio)
}

// checkMIMEType rejects audio whose declared sample rate is not the
// pipeline's. An empty or unparameterized type is accepted.
func checkMIMEType(mimeType string) error {
	if mimeType == "" {
		return nil
	}
	mediaType, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return fmt.Errorf("%w: bad MIME type %q", tts.ErrInvalidAudioFormat, mimeType)
	}
	if !strings.HasPrefix(mediaType, "audio/") {
		return fmt.Errorf("%w: unexpected MIME type %q", tts.ErrInvalidAudioFormat, mediaType)
	}
	if r, ok := params["rate"]; ok {
		if n, err := strconv.Atoi(r); err != nil || n != tts.SampleRate {
			return fmt.Errorf("%w: sample rate %q", tts.ErrInvalidAudioFormat, r)
		}
	}
	return nil
}
