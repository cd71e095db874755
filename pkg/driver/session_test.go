// pkg/driver/session_test.go
package driver_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cicerone-dev/cicerone/pkg/driver"
)

func TestVisitMarksSessionStarted(t *testing.T) {
	ctx := context.Background()
	sess, fake := newTestSession(t, nil)
	assert.False(t, sess.Started())

	require.NoError(t, sess.Visit(ctx, "https://example.com"))
	assert.True(t, sess.Started())
	assert.Equal(t, []string{"https://example.com"}, fake.navigations)

	url, err := sess.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", url)
}

func TestEvaluateMarshalsResult(t *testing.T) {
	ctx := context.Background()
	sess, fake := newTestSession(t, nil)
	fake.evalResult = driver.MapValue(map[string]*driver.RemoteValue{
		"count": driver.Scalar(3),
		"first": driver.ObjectRef(driver.SubtypeNode, "node-9"),
	})

	out, err := sess.Evaluate(ctx, `collectStats()`)
	require.NoError(t, err)

	m, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3, m["count"])

	node, ok := m["first"].(*driver.Node)
	require.True(t, ok)
	assert.Equal(t, "node-9", node.ObjectID())
	assert.Equal(t, "page-1", node.PageID(), "node handles bind to the current page")
}

func TestEvaluatePropagatesTransportError(t *testing.T) {
	sess, fake := newTestSession(t, nil)
	fake.evalErr = errors.New("ReferenceError: foo is not defined")

	_, err := sess.Evaluate(context.Background(), `foo()`)
	assert.ErrorIs(t, err, fake.evalErr, "remote errors pass through unchanged")
}

func TestExecuteDiscardsResult(t *testing.T) {
	sess, fake := newTestSession(t, nil)
	require.NoError(t, sess.Execute(context.Background(), `localStorage.clear()`))
	assert.Equal(t, []string{`localStorage.clear()`}, fake.executed)
}

func TestFindWrapsMatchesAsNodes(t *testing.T) {
	ctx := context.Background()
	sess, fake := newTestSession(t, nil)
	fake.findResults["css .item"] = []driver.NodeRef{
		{PageID: "page-1", ObjectID: "i1"},
		{PageID: "page-1", ObjectID: "i2"},
	}

	nodes, err := sess.Find(ctx, "css", ".item")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "i1", nodes[0].ObjectID())
	assert.Equal(t, "i2", nodes[1].ObjectID())
}

func TestNodeScopedFind(t *testing.T) {
	ctx := context.Background()
	sess, fake := newTestSession(t, nil)
	fake.findResults["css ul"] = []driver.NodeRef{{PageID: "page-1", ObjectID: "list"}}
	fake.findResults["css li"] = []driver.NodeRef{
		{PageID: "page-1", ObjectID: "li-1"},
	}

	lists, err := sess.Find(ctx, "css", "ul")
	require.NoError(t, err)
	require.Len(t, lists, 1)

	items, err := lists[0].Find(ctx, "css", "li")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "li-1", items[0].ObjectID())
}

func TestHeadersRoundTrip(t *testing.T) {
	ctx := context.Background()
	sess, _ := newTestSession(t, nil)

	want := map[string]string{"X-Test": "1", "User-Agent": "cicerone"}
	require.NoError(t, sess.SetHeaders(ctx, want))

	got, err := sess.Headers(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestResizeClampsToScreenSize(t *testing.T) {
	ctx := context.Background()

	t.Run("clamped", func(t *testing.T) {
		sess, fake := newTestSession(t, func(o *driver.Options) {
			o.ScreenSize = &driver.Size{Width: 1280, Height: 800}
		})
		require.NoError(t, sess.ResizeWindow(ctx, 4000, 3000))
		require.Len(t, fake.resizes, 1)
		assert.Equal(t, driver.Size{Width: 1280, Height: 800}, fake.resizes[0])
	})

	t.Run("unclamped without screen size", func(t *testing.T) {
		sess, fake := newTestSession(t, nil)
		require.NoError(t, sess.ResizeWindow(ctx, 4000, 3000))
		require.Len(t, fake.resizes, 1)
		assert.Equal(t, driver.Size{Width: 4000, Height: 3000}, fake.resizes[0])
	})
}

func TestMaximizeUsesScreenSizeWhenConfigured(t *testing.T) {
	ctx := context.Background()

	t.Run("with screen size", func(t *testing.T) {
		sess, fake := newTestSession(t, func(o *driver.Options) {
			o.ScreenSize = &driver.Size{Width: 1920, Height: 1080}
		})
		require.NoError(t, sess.MaximizeWindow(ctx))
		require.Len(t, fake.resizes, 1)
		assert.Equal(t, driver.Size{Width: 1920, Height: 1080}, fake.resizes[0])
		assert.Zero(t, fake.maximized)
	})

	t.Run("without screen size", func(t *testing.T) {
		sess, fake := newTestSession(t, nil)
		require.NoError(t, sess.MaximizeWindow(ctx))
		assert.Equal(t, 1, fake.maximized)
		assert.Empty(t, fake.resizes)
	})
}

func TestScreenshots(t *testing.T) {
	ctx := context.Background()
	sess, fake := newTestSession(t, nil)

	require.NoError(t, sess.SaveScreenshot(ctx, "/tmp/shot.png", driver.ScreenshotOptions{FullPage: true}))
	require.Len(t, fake.screenshots, 1)
	assert.Equal(t, "/tmp/shot.png", fake.screenshots[0].Path)
	assert.True(t, fake.screenshots[0].FullPage)

	b64, err := sess.ScreenshotBase64(ctx, driver.ScreenshotOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, b64)
	assert.Empty(t, fake.screenshots[1].Path, "base64 rendering must not write a file")
}

func TestWindowManagement(t *testing.T) {
	ctx := context.Background()
	sess, _ := newTestSession(t, nil)

	handle, err := sess.OpenWindow(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, handle)

	windows, err := sess.Windows(ctx)
	require.NoError(t, err)
	assert.Contains(t, windows, handle)

	require.NoError(t, sess.CloseWindow(ctx, handle))
	windows, err = sess.Windows(ctx)
	require.NoError(t, err)
	assert.NotContains(t, windows, handle)
}
