package visits

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/slot-reservation/internal/appointment"
)

type fakeCompleter struct {
	mu    sync.Mutex
	calls []uuid.UUID
	err   error
}

func (f *fakeCompleter) Complete(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if f.err != nil {
		return nil, f.err
	}
	return &appointment.Appointment{ID: id, Status: appointment.StatusCompleted}, nil
}

func (f *fakeCompleter) seen() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.calls...)
}

func TestHandleIgnoresMalformedPayloads(t *testing.T) {
	svc := &fakeCompleter{}
	l := NewListener(nil, "", svc, zerolog.Nop())

	l.Handle(context.Background(), []byte(`not json`))
	l.Handle(context.Background(), []byte(`{"visit_id":"v-1"}`))
	assert.Empty(t, svc.seen())
}

func TestHandleSurvivesRejectedTransition(t *testing.T) {
	svc := &fakeCompleter{err: errors.Join(appointment.ErrInvalidState, errors.New("tentative"))}
	l := NewListener(nil, "", svc, zerolog.Nop())

	id := uuid.New()
	l.Handle(context.Background(), []byte(`{"appointment_id":"`+id.String()+`"}`))
	assert.Equal(t, []uuid.UUID{id}, svc.seen())
}

func TestListenerCompletesFromChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc := &fakeCompleter{}
	l := NewListener(client, "", svc, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case <-l.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("listener never subscribed")
	}

	id := uuid.New()
	require.NoError(t, client.Publish(ctx, DefaultChannel, `{"appointment_id":"`+id.String()+`","visit_id":"v-9"}`).Err())

	require.Eventually(t, func() bool { return len(svc.seen()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, id, svc.seen()[0])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}
