// pkg/driver/modal_test.go
package driver_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cicerone-dev/cicerone/pkg/driver"
)

// raiseDialogAfter simulates a dialog that becomes visible after delay and
// then stays raised until accepted or dismissed.
func raiseDialogAfter(message string, delay time.Duration) func() (string, bool) {
	visibleAt := time.Now().Add(delay)
	return func() (string, bool) {
		if time.Now().Before(visibleAt) {
			return "", false
		}
		return message, true
	}
}

func TestFindModalReturnsMessageOnceRaised(t *testing.T) {
	defer goleak.VerifyNone(t)
	sess, fake := newTestSession(t, nil)
	fake.setDialog(raiseDialogAfter("Are you sure?", 120*time.Millisecond))

	start := time.Now()
	msg, err := sess.FindModal(context.Background(), driver.ModalOptions{Wait: 500 * time.Millisecond})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "Are you sure?", msg)
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
}

func TestFindModalImmediateMatchSkipsPolling(t *testing.T) {
	sess, fake := newTestSession(t, nil)
	fake.setDialog(func() (string, bool) { return "ready", true })

	start := time.Now()
	msg, err := sess.FindModal(context.Background(), driver.ModalOptions{Wait: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "ready", msg)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestFindModalTimeoutWithoutDialog(t *testing.T) {
	defer goleak.VerifyNone(t)
	sess, _ := newTestSession(t, nil)

	start := time.Now()
	_, err := sess.FindModal(context.Background(), driver.ModalOptions{Wait: 200 * time.Millisecond})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)

	var notFound *driver.ModalNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Empty(t, notFound.Observed)
	assert.Contains(t, err.Error(), "no dialog was observed")
}

func TestFindModalTimeoutWithMismatchedText(t *testing.T) {
	sess, fake := newTestSession(t, nil)
	fake.setDialog(func() (string, bool) { return "Cancel?", true })

	_, err := sess.FindModal(context.Background(), driver.ModalOptions{
		Wait: 200 * time.Millisecond,
		Text: "Delete?",
	})

	require.Error(t, err)
	var notFound *driver.ModalNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "Delete?", notFound.Expected)
	assert.Equal(t, []string{"Cancel?"}, notFound.Observed)
	assert.Contains(t, err.Error(), "Delete?")
	assert.Contains(t, err.Error(), "Cancel?")
}

func TestModalNotFoundErrorQuotesEachObservedMessage(t *testing.T) {
	err := &driver.ModalNotFoundError{
		Expected: "Delete?",
		Observed: []string{"Cancel?", "Other"},
	}
	msg := err.Error()
	assert.Contains(t, msg, `observed "Cancel?", "Other" instead`)
	assert.NotContains(t, msg, `\"`)
}

func TestFindModalTextMatching(t *testing.T) {
	t.Run("literal substring match", func(t *testing.T) {
		sess, fake := newTestSession(t, nil)
		fake.setDialog(func() (string, bool) { return "Are you sure?", true })

		// The trailing "?" must be treated literally, not as a regexp
		// quantifier.
		msg, err := sess.FindModal(context.Background(), driver.ModalOptions{
			Wait: 200 * time.Millisecond,
			Text: "you sure?",
		})
		require.NoError(t, err)
		assert.Equal(t, "Are you sure?", msg)
	})

	t.Run("literal match is case sensitive", func(t *testing.T) {
		sess, fake := newTestSession(t, nil)
		fake.setDialog(func() (string, bool) { return "Are you sure?", true })

		_, err := sess.FindModal(context.Background(), driver.ModalOptions{
			Wait: 150 * time.Millisecond,
			Text: "ARE YOU SURE?",
		})
		var notFound *driver.ModalNotFoundError
		require.ErrorAs(t, err, &notFound)
	})

	t.Run("regexp filter", func(t *testing.T) {
		sess, fake := newTestSession(t, nil)
		fake.setDialog(func() (string, bool) { return "Delete 3 items?", true })

		msg, err := sess.FindModal(context.Background(), driver.ModalOptions{
			Wait:       200 * time.Millisecond,
			TextRegexp: regexp.MustCompile(`(?i)^delete \d+ items\?$`),
		})
		require.NoError(t, err)
		assert.Equal(t, "Delete 3 items?", msg)
	})
}

func TestFindModalDefaultsToSessionMaxWait(t *testing.T) {
	sess, _ := newTestSession(t, func(o *driver.Options) {
		o.MaxWait = 120 * time.Millisecond
	})

	start := time.Now()
	_, err := sess.FindModal(context.Background(), driver.ModalOptions{})
	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 120*time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFindModalHonorsContextCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)
	sess, _ := newTestSession(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(80 * time.Millisecond)
		cancel()
	}()

	_, err := sess.FindModal(ctx, driver.ModalOptions{Wait: 5 * time.Second})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAcceptModal(t *testing.T) {
	sess, fake := newTestSession(t, nil)

	msg, err := sess.AcceptModal(context.Background(), driver.ModalOptions{
		Wait:   300 * time.Millisecond,
		Prompt: "John Doe",
	}, func(ctx context.Context) error {
		fake.setDialog(func() (string, bool) { return "What is your name?", true })
		return sess.Execute(ctx, `promptForName()`)
	})

	require.NoError(t, err)
	assert.Equal(t, "What is your name?", msg)
	assert.Equal(t, []string{"John Doe"}, fake.accepted)
}

func TestAcceptModalPropagatesActionError(t *testing.T) {
	sess, fake := newTestSession(t, nil)
	boom := errors.New("click failed")

	_, err := sess.AcceptModal(context.Background(), driver.ModalOptions{Wait: 100 * time.Millisecond},
		func(context.Context) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.Empty(t, fake.accepted, "a failed action must not accept anything")
}

func TestDismissModal(t *testing.T) {
	sess, fake := newTestSession(t, nil)
	fake.setDialog(func() (string, bool) { return "Leave page?", true })

	msg, err := sess.DismissModal(context.Background(), driver.ModalOptions{Wait: 200 * time.Millisecond}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Leave page?", msg)
	assert.Equal(t, 1, fake.dismissed)
}

func TestFindModalPropagatesTransportError(t *testing.T) {
	boom := errors.New("connection reset")
	sess := newSessionWith(t, &dialogFailingClient{fakeClient: newFakeClient(), err: boom})

	_, err := sess.FindModal(context.Background(), driver.ModalOptions{Wait: time.Second})
	assert.ErrorIs(t, err, boom)
}

type dialogFailingClient struct {
	*fakeClient
	err error
}

func (c *dialogFailingClient) DialogMessage(context.Context) (string, bool, error) {
	return "", false, c.err
}

// newSessionWith builds a session over an arbitrary Client.
func newSessionWith(t *testing.T, client driver.Client) *driver.Session {
	t.Helper()
	d := driver.New(driver.Options{
		Connect: func(context.Context, driver.Options) (driver.Client, error) { return client, nil },
	})
	sess, err := d.Browser(context.Background())
	require.NoError(t, err)
	return sess
}
