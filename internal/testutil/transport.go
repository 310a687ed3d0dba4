// Package testutil provides shared test doubles.
package testutil

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/zapflowhq/zapflow/pkg/domain"
)

// SentText records one SendText call.
type SentText struct {
	ChatID string
	Text   string
}

// SentMedia records one SendMedia call. FileExisted captures whether
// the artifact was still on disk at send time.
type SentMedia struct {
	ChatID      string
	Media       domain.OutboundMedia
	FileExisted bool
}

// SentPoll records one SendPoll call.
type SentPoll struct {
	ChatID   string
	Question string
	Options  []string
}

// Transport is a recording fake for ports.Transport. Zero value is
// ready and succeeds on everything.
type Transport struct {
	mu sync.Mutex

	Texts []SentText
	Media []SentMedia
	Polls []SentPoll

	TypingCalls    int
	RecordingCalls int
	ClearCalls     int

	// Failure knobs.
	TextErr        error
	PollErr        error
	MediaErr       error // permanent failure
	FailMediaSends int   // fail only the first N media sends
	NotReady       bool

	mediaAttempts int
}

var errInjected = errors.New("injected transport failure")

func (t *Transport) SendText(_ context.Context, chatID, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.TextErr != nil {
		return t.TextErr
	}
	t.Texts = append(t.Texts, SentText{ChatID: chatID, Text: text})
	return nil
}

func (t *Transport) SendMedia(_ context.Context, chatID string, media domain.OutboundMedia) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.mediaAttempts++
	if t.MediaErr != nil {
		return t.MediaErr
	}
	if t.mediaAttempts <= t.FailMediaSends {
		return errInjected
	}

	_, statErr := os.Stat(media.Path)
	t.Media = append(t.Media, SentMedia{
		ChatID:      chatID,
		Media:       media,
		FileExisted: statErr == nil,
	})
	return nil
}

func (t *Transport) SendPoll(_ context.Context, chatID, question string, options []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.PollErr != nil {
		return t.PollErr
	}
	t.Polls = append(t.Polls, SentPoll{ChatID: chatID, Question: question, Options: options})
	return nil
}

func (t *Transport) SetTyping(_ context.Context, _ string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TypingCalls++
	return nil
}

func (t *Transport) SetRecording(_ context.Context, _ string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.RecordingCalls++
	return nil
}

func (t *Transport) ClearPresence(_ context.Context, _ string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ClearCalls++
	return nil
}

func (t *Transport) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.NotReady
}

// MediaAttempts returns how many SendMedia calls were made, failed
// ones included.
func (t *Transport) MediaAttempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mediaAttempts
}

// TextBodies returns just the message bodies, in send order.
func (t *Transport) TextBodies() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	bodies := make([]string, len(t.Texts))
	for i, s := range t.Texts {
		bodies[i] = s.Text
	}
	return bodies
}
