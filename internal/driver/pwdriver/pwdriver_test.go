package pwdriver

import (
	"context"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staticpress2019/e2e/internal/browser"
)

// emitterPage routes listener registration to a real playwright emitter;
// every other Page method is left unimplemented.
type emitterPage struct {
	playwright.Page
	events playwright.EventEmitter
}

func (p *emitterPage) Once(name string, handler interface{}) { p.events.Once(name, handler) }

func (p *emitterPage) RemoveListener(name string, handler interface{}) {
	p.events.RemoveListener(name, handler)
}

func newEmitterDriver() (*Driver, playwright.EventEmitter) {
	events := playwright.NewEventEmitter()
	return &Driver{page: &emitterPage{events: events}}, events
}

func TestExpectCancelReleasesListener(t *testing.T) {
	d, events := newEmitterDriver()

	for i := 0; i < 3; i++ {
		w, err := d.Expect(context.Background(), browser.Load)
		require.NoError(t, err)
		assert.Equal(t, 1, events.ListenerCount("load"))
		w.Cancel()
	}
	assert.Zero(t, events.ListenerCount("load"))
}

func TestExpectFiresOnce(t *testing.T) {
	d, events := newEmitterDriver()

	w, err := d.Expect(context.Background(), browser.DOMContentLoaded)
	require.NoError(t, err)
	defer w.Cancel()
	assert.Zero(t, events.ListenerCount("load"))
	require.Equal(t, 1, events.ListenerCount("domcontentloaded"))

	events.Emit("domcontentloaded", d.page)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Wait(ctx))
	assert.Zero(t, events.ListenerCount("domcontentloaded"))
}

func TestExpectWaitHonoursContext(t *testing.T) {
	d, _ := newEmitterDriver()

	w, err := d.Expect(context.Background(), browser.Load)
	require.NoError(t, err)
	defer w.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Wait(ctx), context.DeadlineExceeded)
}

func TestTimeoutFromDeadline(t *testing.T) {
	assert.Nil(t, timeout(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ms := timeout(ctx)
	require.NotNil(t, ms)
	assert.InDelta(t, 60000, *ms, 1000)
}

func TestTranslateTimeout(t *testing.T) {
	assert.NoError(t, translate(nil))
	assert.ErrorIs(t, translate(playwright.ErrTimeout), browser.ErrTimeout)
}
