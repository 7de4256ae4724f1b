package deepgram

import (
	"strings"
	"sync"

	"talkback/internal/domain"
)

// aggregator merges streamed transcript fragments into the text of the
// finished utterance. Finals accumulate; the last spoken fragment covers
// speech that never got a final before the stream closed.
type aggregator struct {
	mu         sync.Mutex
	finals     []string
	lastSpoken string
}

func newAggregator() *aggregator {
	return &aggregator{}
}

func (a *aggregator) Add(event domain.TranscriptEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	text := strings.TrimSpace(event.Text)
	if text == "" {
		return
	}
	a.lastSpoken = text
	if event.Kind == domain.TranscriptKindFinal {
		a.finals = append(a.finals, text)
	}
}

func (a *aggregator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	joined := strings.TrimSpace(strings.Join(a.finals, " "))
	if joined == "" {
		return a.lastSpoken
	}

	if a.lastSpoken == "" {
		return joined
	}

	if strings.HasSuffix(joined, a.lastSpoken) {
		return joined
	}

	if len(a.lastSpoken) > len(joined) {
		return strings.TrimSpace(joined + " " + a.lastSpoken)
	}

	return joined
}
