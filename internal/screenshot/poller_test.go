package screenshot

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bowerhall/roomchat/internal/agentclient"
	"github.com/bowerhall/roomchat/internal/agentstub"
	"github.com/bowerhall/roomchat/internal/chat"
)

type fakeFetcher struct {
	mu    sync.Mutex
	shots map[string]chat.Screenshot
	err   error
}

func (f *fakeFetcher) Screenshot(ctx context.Context, worker string) (chat.Screenshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return chat.Screenshot{}, f.err
	}
	shot, ok := f.shots[worker]
	if !ok {
		return chat.Screenshot{Status: StatusNoBrowser}, nil
	}
	return shot, nil
}

func (f *fakeFetcher) set(worker string, image []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	encoded := base64.StdEncoding.EncodeToString(image)
	f.shots[worker] = chat.Screenshot{Status: StatusOK, Screenshot: &encoded}
}

type fakeArchiver struct {
	mu       sync.Mutex
	archived []string
}

func (a *fakeArchiver) ArchiveScreenshot(ctx context.Context, worker string, at time.Time, image []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived = append(a.archived, worker+":"+string(image))
	return "screenshots/" + worker, nil
}

func TestPollDetectsChanges(t *testing.T) {
	f := &fakeFetcher{shots: map[string]chat.Screenshot{}}
	arch := &fakeArchiver{}
	var seen []Frame
	p, err := New(f, WithArchiver(arch), WithOnFrame(func(fr Frame) { seen = append(seen, fr) }))
	require.NoError(t, err)
	ctx := context.Background()

	frame, changed, err := p.Poll(ctx, "a")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusNoBrowser, frame.Status)
	assert.Nil(t, frame.Image)

	f.set("a", []byte("frame-1"))
	frame, changed, err = p.Poll(ctx, "a")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []byte("frame-1"), frame.Image)

	_, changed, err = p.Poll(ctx, "a")
	require.NoError(t, err)
	assert.False(t, changed)

	f.set("a", []byte("frame-2"))
	_, changed, _ = p.Poll(ctx, "a")
	assert.True(t, changed)

	assert.Equal(t, []string{"a:frame-1", "a:frame-2"}, arch.archived)
	assert.Len(t, seen, 3)

	latest, ok := p.Latest("a")
	require.True(t, ok)
	assert.Equal(t, []byte("frame-2"), latest.Image)

	_, ok = p.Latest("b")
	assert.False(t, ok)
}

func TestPollWorkersAreIndependent(t *testing.T) {
	f := &fakeFetcher{shots: map[string]chat.Screenshot{}}
	f.set("a", []byte("same"))
	f.set("b", []byte("same"))
	p, err := New(f)
	require.NoError(t, err)

	_, changedA, _ := p.Poll(context.Background(), "a")
	_, changedB, _ := p.Poll(context.Background(), "b")
	assert.True(t, changedA)
	assert.True(t, changedB)
}

func TestPollErrors(t *testing.T) {
	f := &fakeFetcher{shots: map[string]chat.Screenshot{}, err: errors.New("agent down")}
	p, err := New(f)
	require.NoError(t, err)

	_, _, err = p.Poll(context.Background(), "a")
	assert.Error(t, err)

	bad := "not base64!"
	f.err = nil
	f.shots["a"] = chat.Screenshot{Status: StatusOK, Screenshot: &bad}
	_, _, err = p.Poll(context.Background(), "a")
	assert.Error(t, err)

	_, ok := p.Latest("a")
	assert.False(t, ok)
}

func TestInvalidSchedule(t *testing.T) {
	_, err := New(&fakeFetcher{}, WithSchedule("every now and then"))
	assert.Error(t, err)
}

func TestStartPollsAgent(t *testing.T) {
	stub := agentstub.New(agentstub.WithScreenshot("b", base64.StdEncoding.EncodeToString([]byte("png"))))
	srv := httptest.NewServer(stub.Handler())
	defer srv.Close()

	frames := make(chan Frame, 4)
	p, err := New(agentclient.New(srv.URL),
		WithSchedule("@every 1s"),
		WithWorkers("b"),
		WithOnFrame(func(f Frame) { frames <- f }),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Start(ctx))
	defer p.Stop()

	select {
	case f := <-frames:
		assert.Equal(t, "b", f.Worker)
		assert.Equal(t, StatusOK, f.Status)
		assert.Equal(t, []byte("png"), f.Image)
	case <-time.After(5 * time.Second):
		t.Fatal("no frame polled")
	}
}

type fakeNotifier struct {
	warned  []string
	cleared []string
}

func (n *fakeNotifier) Warn(component, message string, err error) {
	n.warned = append(n.warned, component)
}

func (n *fakeNotifier) Clear(component string) {
	n.cleared = append(n.cleared, component)
}

func TestScheduledPollNotifies(t *testing.T) {
	f := &fakeFetcher{shots: map[string]chat.Screenshot{}, err: errors.New("agent down")}
	n := &fakeNotifier{}
	p, err := New(f, WithNotifier(n))
	require.NoError(t, err)
	ctx := context.Background()

	p.pollScheduled(ctx, "a")
	assert.Equal(t, []string{"screenshot a"}, n.warned)

	f.mu.Lock()
	f.err = nil
	f.mu.Unlock()
	f.set("a", []byte("img"))

	p.pollScheduled(ctx, "a")
	assert.Equal(t, []string{"screenshot a"}, n.cleared)
}
