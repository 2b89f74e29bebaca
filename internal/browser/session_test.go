// internal/browser/session_test.go
package browser

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
	"github.com/xkilldash9x/recovery-warden/internal/config"
)

const fixturePage = `<!doctype html>
<html><body>
  <input class="field" value="stale">
  <input class="field">
  <div class="hidden" style="display:none">gone</div>
  <button class="primary" onclick="document.getElementById('out').textContent='clicked'">Go</button>
  <p id="out" data-state="idle"></p>
  <iframe src="/frame"></iframe>
</body></html>`

const fixtureFrame = `<!doctype html><html><body><input id="inner"><span class="label">inside</span></body></html>`

// requireChrome skips browser integration tests on machines without Chrome.
func requireChrome(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser integration test in short mode")
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("no Chrome binary found")
}

func TestSessionAgainstFixture(t *testing.T) {
	requireChrome(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if r.URL.Path == "/frame" {
			_, _ = io.WriteString(w, fixtureFrame)
			return
		}
		_, _ = io.WriteString(w, fixturePage)
	}))
	defer srv.Close()

	d := NewDriver(config.BrowserConfig{
		NavigationTimeout: 30 * time.Second,
		ActionTimeout:     10 * time.Second,
	}, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	sess, err := d.Launch(ctx, schemas.LaunchOptions{Headless: true})
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.Navigate(ctx, srv.URL))

	field := schemas.Locator{Selector: ".field"}
	n, err := sess.Count(ctx, field)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, sess.Fill(ctx, field, "fresh"))
	value, err := sess.Attribute(ctx, field, "value")
	require.NoError(t, err)
	assert.Equal(t, "stale", value, "the attribute keeps the initial markup value")

	assert.True(t, sess.WaitVisible(ctx, schemas.Locator{Selector: ".primary"}, 5*time.Second))
	assert.False(t, sess.IsVisible(ctx, schemas.Locator{Selector: ".hidden"}))
	assert.False(t, sess.WaitVisible(ctx, schemas.Locator{Selector: ".missing"}, 300*time.Millisecond))

	require.NoError(t, sess.Click(ctx, schemas.Locator{Selector: ".primary"}))
	text, err := sess.ReadText(ctx, schemas.Locator{Selector: "#out"})
	require.NoError(t, err)
	assert.Equal(t, "clicked", text)

	_, err = sess.ReadText(ctx, field.At(5))
	assert.ErrorIs(t, err, ErrNoElement)

	inner := schemas.Locator{Frame: "iframe", Selector: ".label"}
	require.True(t, sess.WaitVisible(ctx, inner, 10*time.Second))
	text, err = sess.ReadText(ctx, inner)
	require.NoError(t, err)
	assert.Equal(t, "inside", text)

	png, err := sess.Screenshot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, png)

	markup, err := sess.DumpMarkup(ctx)
	require.NoError(t, err)
	assert.Contains(t, markup, `class="primary"`)

	require.NoError(t, sess.Close())
	assert.ErrorIs(t, sess.Navigate(ctx, srv.URL), ErrNoSession)
}
