// pkg/driver/cookies_test.go
package driver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cicerone-dev/cicerone/pkg/driver"
)

func TestParseCookie(t *testing.T) {
	cases := []struct {
		name      string
		raw       string
		wantName  string
		wantValue string
		wantAttrs map[string]string
	}{
		{
			name:      "name value and attributes",
			raw:       "sid=42; Domain=example.com; Path=/",
			wantName:  "sid",
			wantValue: "42",
			wantAttrs: map[string]string{"Domain": "example.com", "Path": "/"},
		},
		{
			name:      "bare pair",
			raw:       "token=abc",
			wantName:  "token",
			wantValue: "abc",
			wantAttrs: map[string]string{},
		},
		{
			name:      "value containing equals",
			raw:       "data=a=b=c; Path=/",
			wantName:  "data",
			wantValue: "a=b=c",
			wantAttrs: map[string]string{"Path": "/"},
		},
		{
			name:      "flag attribute without value",
			raw:       "sid=42; Secure; HttpOnly",
			wantName:  "sid",
			wantValue: "42",
			wantAttrs: map[string]string{"Secure": "", "HttpOnly": ""},
		},
		{
			name:      "empty value",
			raw:       "cleared=; Path=/",
			wantName:  "cleared",
			wantValue: "",
			wantAttrs: map[string]string{"Path": "/"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			name, value, attrs := driver.ParseCookie(tc.raw)
			assert.Equal(t, tc.wantName, name)
			assert.Equal(t, tc.wantValue, value)
			assert.Equal(t, tc.wantAttrs, attrs)
		})
	}
}

func TestSetRawCookie(t *testing.T) {
	ctx := context.Background()
	sess, fake := newTestSession(t, nil)
	require.NoError(t, sess.Visit(ctx, "https://shop.example.com/cart"))

	err := sess.SetRawCookie(ctx, "sid=42; Domain=example.com; Path=/admin; Secure; HttpOnly; SameSite=Lax")
	require.NoError(t, err)

	require.Len(t, fake.cookies, 1)
	c := fake.cookies[0]
	assert.Equal(t, "sid", c.Name)
	assert.Equal(t, "42", c.Value)
	assert.Equal(t, "example.com", c.Domain)
	assert.Equal(t, "/admin", c.Path)
	assert.True(t, c.Secure)
	assert.True(t, c.HTTPOnly)
	assert.Equal(t, "Lax", c.SameSite)
}

func TestSetCookieDomainDefaulting(t *testing.T) {
	ctx := context.Background()

	t.Run("from current URL once started", func(t *testing.T) {
		sess, fake := newTestSession(t, func(o *driver.Options) {
			o.AppHost = "https://configured.example"
		})
		require.NoError(t, sess.Visit(ctx, "https://visited.example.com/page"))

		require.NoError(t, sess.SetCookie(ctx, driver.Cookie{Name: "sid", Value: "1"}))
		require.Len(t, fake.cookies, 1)
		assert.Equal(t, "visited.example.com", fake.cookies[0].Domain)
	})

	t.Run("from app host before navigation", func(t *testing.T) {
		sess, fake := newTestSession(t, func(o *driver.Options) {
			o.AppHost = "https://configured.example:8443"
		})

		require.NoError(t, sess.SetCookie(ctx, driver.Cookie{Name: "sid", Value: "1"}))
		require.Len(t, fake.cookies, 1)
		assert.Equal(t, "configured.example", fake.cookies[0].Domain)
	})

	t.Run("loopback fallback", func(t *testing.T) {
		sess, fake := newTestSession(t, nil)

		require.NoError(t, sess.SetCookie(ctx, driver.Cookie{Name: "sid", Value: "1"}))
		require.Len(t, fake.cookies, 1)
		assert.Equal(t, "127.0.0.1", fake.cookies[0].Domain)
	})

	t.Run("explicit domain untouched", func(t *testing.T) {
		sess, fake := newTestSession(t, nil)

		require.NoError(t, sess.SetCookie(ctx, driver.Cookie{Name: "sid", Value: "1", Domain: "keep.example"}))
		require.Len(t, fake.cookies, 1)
		assert.Equal(t, "keep.example", fake.cookies[0].Domain)
	})
}

func TestCookiePathDefaultsToRoot(t *testing.T) {
	ctx := context.Background()
	sess, fake := newTestSession(t, nil)

	require.NoError(t, sess.SetCookie(ctx, driver.Cookie{Name: "sid", Value: "1"}))
	require.Len(t, fake.cookies, 1)
	assert.Equal(t, "/", fake.cookies[0].Path)
}

func TestRemoveAndClearCookies(t *testing.T) {
	ctx := context.Background()
	sess, fake := newTestSession(t, nil)

	require.NoError(t, sess.RemoveCookie(ctx, "sid"))
	assert.Equal(t, []string{"sid"}, fake.removedCookies)

	require.NoError(t, sess.ClearCookies(ctx))
	assert.Equal(t, 1, fake.clearedCookies)
}
