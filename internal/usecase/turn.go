package usecase

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/uuid"

	"talkback/internal/domain"
	"talkback/internal/ports"
)

// turn owns everything produced by one press-and-hold interaction.
// Pointer identity is the fence: pipeline results only apply while the
// controller still points at the turn that produced them.
type turn struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	session ports.CaptureSession
	stream  ports.TranscriptionSession

	clipMu sync.Mutex
	clip   bytes.Buffer

	collectDone  chan struct{}
	partialsDone chan struct{}
}

func newTurn(ctx context.Context, cancel context.CancelFunc, session ports.CaptureSession, stream ports.TranscriptionSession) *turn {
	return &turn{
		id:           uuid.NewString(),
		ctx:          ctx,
		cancel:       cancel,
		session:      session,
		stream:       stream,
		collectDone:  make(chan struct{}),
		partialsDone: make(chan struct{}),
	}
}

func (t *turn) appendChunk(chunk []byte) {
	t.clipMu.Lock()
	t.clip.Write(chunk)
	t.clipMu.Unlock()
}

func (t *turn) takeClip(mime string) domain.Clip {
	t.clipMu.Lock()
	defer t.clipMu.Unlock()
	data := append([]byte(nil), t.clip.Bytes()...)
	return domain.Clip{Data: data, MIME: mime}
}
