package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/keepalive/internal/domain/app"
	"github.com/GriffinCanCode/keepalive/internal/shared/id"
	"github.com/GriffinCanCode/keepalive/internal/shared/types"
)

type message struct {
	subject string
	data    []byte
}

type fakeConn struct {
	mu      sync.Mutex
	msgs    []message
	err     error
	drained int
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, message{subject: subject, data: data})
	return nil
}

func (f *fakeConn) Drain() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drained++
	return nil
}

func transition(userID int, to types.GroupState) app.Transition {
	return app.Transition{
		Identity:  types.NewIdentity(userID, "com.example.chat"),
		From:      types.StateActive,
		To:        to,
		Component: "com.example.chat/.MainActivity",
		At:        time.UnixMilli(1_700_000_000_000),
	}
}

func TestPublishSubjectAndPayload(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "", nil)

	require.NoError(t, p.Publish(context.Background(), transition(10, types.StateIdle)))

	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "keepalive.lifecycle.idle", conn.msgs[0].subject)

	e, err := Decode(conn.msgs[0].data)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(e.ID, id.EventPrefix+"_"), e.ID)
	e.ID = ""
	assert.Equal(t, Event{
		App:       "10:com.example.chat",
		UserID:    10,
		Package:   "com.example.chat",
		From:      "active",
		To:        "idle",
		Component: "com.example.chat/.MainActivity",
		At:        1_700_000_000_000,
	}, e)
}

func TestPublishErrors(t *testing.T) {
	conn := &fakeConn{err: errors.New("connection lost")}
	p := NewPublisher(conn, "device.apps", nil)

	err := p.Publish(context.Background(), transition(0, types.StateDead))
	assert.ErrorContains(t, err, "connection lost")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, transition(0, types.StateDead)), context.Canceled)
}

func TestCloseDrainsOnce(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "", nil)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, conn.drained)
	assert.ErrorIs(t, p.Publish(context.Background(), transition(0, types.StateIdle)), ErrClosed)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), transition(0, types.StateActive)))
	assert.NoError(t, p.Close())
}
