// Package media implements the outbound media delivery pipeline:
// inline-encoded payloads are materialized to temporary artifacts,
// transcoded or compressed when needed, and sent through a layered
// fallback chain. Temporary artifacts are removed on every exit path.
package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zapflowhq/zapflow/internal/metrics"
	"github.com/zapflowhq/zapflow/pkg/domain"
	"github.com/zapflowhq/zapflow/pkg/ports"
)

const (
	// videoSizeLimit gates compression: videos above it get squeezed to
	// a 720p profile before sending.
	videoSizeLimit = 16 << 20

	sendRetries      = 2
	sendRetryBackoff = 2 * time.Second
	audioSendTimeout = 20 * time.Second

	videoCaption      = "Clique para assistir"
	mediaErrorText    = "⚠️ Erro ao enviar mídia."
	audioCorruptText  = "⚠️ Erro ao enviar áudio (Arquivo corrompido)."
	audioFailureText  = "⚠️ Não consegui enviar o áudio. (Erro técnico)"
	voiceNoteMimeType = "audio/ogg; codecs=opus"
)

// Transcoder converts media artifacts on disk. Implemented by the
// ffmpeg wrapper; tests substitute fakes.
type Transcoder interface {
	// CompressVideo re-encodes a video to the bounded 720p profile.
	CompressVideo(ctx context.Context, inputPath, outputPath string) error
	// TranscodeToVoice converts audio to the OGG/Opus voice-note format.
	TranscodeToVoice(ctx context.Context, inputPath, outputPath string) error
}

// Pipeline delivers a node's inline media payload.
type Pipeline struct {
	transport  ports.Transport
	transcoder Transcoder
	logger     *slog.Logger

	tmpDir  string
	backoff time.Duration
}

// Option configures the Pipeline.
type Option func(*Pipeline)

// WithTempDir sets where temporary artifacts are materialized
// (default os.TempDir).
func WithTempDir(dir string) Option {
	return func(p *Pipeline) {
		p.tmpDir = dir
	}
}

// WithRetryBackoff overrides the fixed backoff between send retries
// (tests use zero).
func WithRetryBackoff(d time.Duration) Option {
	return func(p *Pipeline) {
		p.backoff = d
	}
}

// NewPipeline creates a media delivery pipeline.
func NewPipeline(transport ports.Transport, transcoder Transcoder, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		transport:  transport,
		transcoder: transcoder,
		logger:     logger,
		tmpDir:     os.TempDir(),
		backoff:    sendRetryBackoff,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Deliver sends an image, video, or document node's payload. Failures
// are absorbed: the final fallback is an apology text, so the flow
// continues either way.
func (p *Pipeline) Deliver(ctx context.Context, chatID string, node domain.Node) error {
	var artifacts []string
	defer func() { p.cleanup(artifacts) }()

	mimeType, path, err := p.materialize(node.MediaURI(), "media")
	if err != nil {
		p.logger.Error("failed to materialize media", "chat", chatID, "node", node.ID, "err", err)
		p.apologize(ctx, chatID, mediaErrorText)
		metrics.MediaDeliveries.WithLabelValues("failed").Inc()
		return nil
	}
	artifacts = append(artifacts, path)

	isVideo := strings.HasPrefix(mimeType, "video/")
	finalPath := path
	if isVideo {
		if compressed, ok := p.maybeCompress(ctx, path); ok {
			artifacts = append(artifacts, compressed)
			finalPath = compressed
		}
	}

	out := domain.OutboundMedia{
		Path:     finalPath,
		MimeType: mimeType,
		Caption:  captionFor(node, mimeType),
		FileName: node.FileName(),
	}

	if err := p.sendWithRetry(ctx, chatID, out); err != nil {
		p.logger.Error("media send failed after retries", "chat", chatID, "node", node.ID, "err", err)
		if isVideo {
			// Last resort for video: deliver as a generic file
			// attachment instead of inline media.
			out.AsDocument = true
			if docErr := p.transport.SendMedia(ctx, chatID, out); docErr == nil {
				metrics.MediaDeliveries.WithLabelValues("fallback").Inc()
				return nil
			}
		}
		p.apologize(ctx, chatID, mediaErrorText)
		metrics.MediaDeliveries.WithLabelValues("failed").Inc()
		return nil
	}

	metrics.MediaDeliveries.WithLabelValues("sent").Inc()
	return nil
}

// DeliverVoice sends an audio node's payload as a voice note. The
// audio is always normalized to OGG/Opus first; a failed voice send
// falls back to plain audio, then to an apology.
func (p *Pipeline) DeliverVoice(ctx context.Context, chatID string, node domain.Node) error {
	var artifacts []string
	defer func() { p.cleanup(artifacts) }()

	_, path, err := p.materialize(node.MediaURI(), "audio")
	if err != nil {
		p.logger.Error("failed to materialize audio", "chat", chatID, "node", node.ID, "err", err)
		p.apologize(ctx, chatID, audioCorruptText)
		metrics.MediaDeliveries.WithLabelValues("failed").Inc()
		return nil
	}
	artifacts = append(artifacts, path)

	voicePath := filepath.Join(p.tmpDir, "converted_audio_"+uuid.NewString()+".ogg")
	voiceErr := p.transcoder.TranscodeToVoice(ctx, path, voicePath)
	if voiceErr == nil {
		artifacts = append(artifacts, voicePath)

		sendCtx, cancel := context.WithTimeout(ctx, audioSendTimeout)
		err = p.transport.SendMedia(sendCtx, chatID, domain.OutboundMedia{
			Path:     voicePath,
			MimeType: voiceNoteMimeType,
			AsVoice:  true,
		})
		cancel()
		if err == nil {
			metrics.MediaDeliveries.WithLabelValues("sent").Inc()
			return nil
		}
		p.logger.Error("voice send failed, trying plain audio", "chat", chatID, "err", err)
	} else {
		p.logger.Error("voice transcode failed, trying plain audio", "chat", chatID, "err", voiceErr)
	}

	// Fallback: send whatever artifact we still have as plain audio.
	fallbackPath := path
	if voiceErr == nil && fileUsable(voicePath) {
		fallbackPath = voicePath
	}
	if !fileUsable(fallbackPath) {
		p.apologize(ctx, chatID, audioCorruptText)
		metrics.MediaDeliveries.WithLabelValues("failed").Inc()
		return nil
	}

	if err := p.transport.SendMedia(ctx, chatID, domain.OutboundMedia{
		Path:     fallbackPath,
		MimeType: "audio/ogg",
	}); err != nil {
		p.logger.Error("fallback audio send failed", "chat", chatID, "err", err)
		p.apologize(ctx, chatID, audioFailureText)
		metrics.MediaDeliveries.WithLabelValues("failed").Inc()
		return nil
	}

	metrics.MediaDeliveries.WithLabelValues("fallback").Inc()
	return nil
}

// materialize decodes an inline data URI to a uniquely named temporary
// artifact and returns its MIME type and path.
func (p *Pipeline) materialize(dataURI, kind string) (mimeType, path string, err error) {
	mimeType, encoded, err := parseDataURI(dataURI)
	if err != nil {
		return "", "", err
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", fmt.Errorf("failed to decode media payload: %w", err)
	}

	name := fmt.Sprintf("%s_%s.%s", kind, uuid.NewString(), extensionForMime(mimeType))
	path = filepath.Join(p.tmpDir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", "", fmt.Errorf("failed to write media artifact: %w", err)
	}
	return mimeType, path, nil
}

// maybeCompress squeezes oversized videos. Compression failure is not
// fatal: the original artifact is sent instead.
func (p *Pipeline) maybeCompress(ctx context.Context, path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || info.Size() <= videoSizeLimit {
		return "", false
	}

	p.logger.Info("video exceeds size limit, compressing",
		"size_mb", fmt.Sprintf("%.2f", float64(info.Size())/(1<<20)))

	out := filepath.Join(p.tmpDir, "compressed_video_"+uuid.NewString()+".mp4")
	if err := p.transcoder.CompressVideo(ctx, path, out); err != nil {
		p.logger.Error("compression failed, sending original file", "err", err)
		// The output may have been partially written.
		_ = os.Remove(out)
		return "", false
	}

	metrics.MediaDeliveries.WithLabelValues("compressed").Inc()
	return out, true
}

// sendWithRetry attempts the send with bounded retries and a fixed
// backoff for transient failures.
func (p *Pipeline) sendWithRetry(ctx context.Context, chatID string, out domain.OutboundMedia) error {
	var err error
	for attempt := 0; attempt <= sendRetries; attempt++ {
		if attempt > 0 {
			p.logger.Info("send failed, retrying", "chat", chatID, "attempts_left", sendRetries-attempt+1)
			timer := time.NewTimer(p.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err = p.transport.SendMedia(ctx, chatID, out); err == nil {
			return nil
		}
	}
	return err
}

func (p *Pipeline) apologize(ctx context.Context, chatID, text string) {
	if err := p.transport.SendText(ctx, chatID, text); err != nil {
		p.logger.Error("failed to send media apology", "chat", chatID, "err", err)
	}
}

func (p *Pipeline) cleanup(paths []string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			p.logger.Warn("failed to remove media artifact", "path", path, "err", err)
		}
	}
}

// parseDataURI splits "data:<mime>;base64,<payload>". Whitespace inside
// the payload (builders have emitted it) is stripped.
func parseDataURI(uri string) (mimeType, payload string, err error) {
	if !strings.HasPrefix(uri, "data:") {
		return "", "", fmt.Errorf("media payload is not a data URI")
	}
	meta, data, ok := strings.Cut(uri[len("data:"):], ",")
	if !ok {
		return "", "", fmt.Errorf("malformed data URI")
	}
	mimeType, _, _ = strings.Cut(meta, ";")
	if mimeType == "" {
		return "", "", fmt.Errorf("data URI has no media type")
	}

	payload = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, data)
	return mimeType, payload, nil
}

// extensionForMime derives a file extension from the MIME type, with
// explicit overrides for the common cases.
func extensionForMime(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "video/mp4":
		return "mp4"
	case "application/pdf":
		return "pdf"
	case "audio/mpeg":
		return "mp3"
	case "audio/mp4":
		return "m4a"
	case "audio/wav":
		return "wav"
	case "audio/ogg":
		return "ogg"
	}
	if _, sub, ok := strings.Cut(mimeType, "/"); ok && sub != "" {
		return sub
	}
	return "bin"
}

// captionFor applies the caption rules: placeholder labels from the
// builder are suppressed, and video always gets the canned caption.
func captionFor(node domain.Node, mimeType string) string {
	if strings.HasPrefix(mimeType, "video/") {
		return videoCaption
	}

	caption := node.Label()
	ext := strings.ToUpper(extensionForMime(mimeType))
	switch caption {
	case "Enviar " + ext, "PDF Node", "Image Node", "Video Node":
		return ""
	}
	return caption
}

func fileUsable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
