// internal/captcha/captcha_test.go
package captcha

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/recovery-warden/internal/config"
)

// sampleImage is "ABCD" encoded as a data URI.
const sampleImage = "data:image/png;base64,QUJDRA=="

// scriptedStrategy returns the queued answers in order, then "".
type scriptedStrategy struct {
	answers []string
	errs    []error
	calls   atomic.Int32
}

func (s *scriptedStrategy) Name() string { return "scripted" }

func (s *scriptedStrategy) Resolve(context.Context, string) (string, error) {
	i := int(s.calls.Add(1)) - 1
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if i < len(s.answers) {
		return s.answers[i], err
	}
	return "", err
}

func TestStripDataURI(t *testing.T) {
	tests := map[string]string{
		"data:image/png;base64,QUJD":     "QUJD",
		"data:image/jpeg;base64,QUJD":    "QUJD",
		"QUJD":                           "QUJD",
		"  data:image/gif;base64,QUJD":   "QUJD",
		"data:image/svg+xml;base64,QUJD": "QUJD",
		"data:text/plain;base64,QUJD":    "QUJD",
		"data:;base64,QUJD":              "QUJD",
		"data:image/png,QUJD":            "data:image/png,QUJD",
	}
	for in, want := range tests {
		assert.Equal(t, want, StripDataURI(in), in)
	}
}

func TestDecodeImage(t *testing.T) {
	data, err := DecodeImage(sampleImage)
	require.NoError(t, err)
	assert.Equal(t, []byte("ABCD"), data)

	_, err = DecodeImage("")
	assert.Error(t, err)
	_, err = DecodeImage("data:image/png;base64,%%%")
	assert.Error(t, err)
}

func TestResolveWithRetry(t *testing.T) {
	t.Run("succeeds on the third call within three attempts", func(t *testing.T) {
		s := &scriptedStrategy{answers: []string{"", "ab", "XY7K"}}
		solver := NewSolver(s, zaptest.NewLogger(t), WithRetryDelay(0))
		assert.Equal(t, "XY7K", solver.ResolveWithRetry(context.Background(), sampleImage, 3))
		assert.EqualValues(t, 3, s.calls.Load())
	})

	t.Run("gives up after two attempts", func(t *testing.T) {
		s := &scriptedStrategy{answers: []string{"", "ab", "XY7K"}}
		solver := NewSolver(s, zaptest.NewLogger(t), WithRetryDelay(0))
		assert.Equal(t, "", solver.ResolveWithRetry(context.Background(), sampleImage, 2))
		assert.EqualValues(t, 2, s.calls.Load())
	})

	t.Run("errors count as failed attempts", func(t *testing.T) {
		s := &scriptedStrategy{
			answers: []string{"", "9QRT"},
			errs:    []error{errors.New("boom")},
		}
		solver := NewSolver(s, zaptest.NewLogger(t), WithRetryDelay(0))
		assert.Equal(t, "9QRT", solver.ResolveWithRetry(context.Background(), sampleImage, 3))
	})

	t.Run("non positive attempts use the default", func(t *testing.T) {
		s := &scriptedStrategy{}
		solver := NewSolver(s, nil, WithRetryDelay(0))
		assert.Equal(t, "", solver.ResolveWithRetry(context.Background(), sampleImage, 0))
		assert.EqualValues(t, DefaultMaxAttempts, s.calls.Load())
	})

	t.Run("length is counted in characters", func(t *testing.T) {
		s := &scriptedStrategy{answers: []string{"验证", "验证码字"}}
		solver := NewSolver(s, zaptest.NewLogger(t), WithRetryDelay(0))
		assert.Equal(t, "", solver.ResolveWithRetry(context.Background(), sampleImage, 1))

		s = &scriptedStrategy{answers: []string{"验证", "验证码字"}}
		solver = NewSolver(s, zaptest.NewLogger(t), WithRetryDelay(0))
		assert.Equal(t, "验证码字", solver.ResolveWithRetry(context.Background(), sampleImage, 2))
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		s := &scriptedStrategy{}
		solver := NewSolver(s, nil, WithRetryDelay(time.Hour))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Equal(t, "", solver.ResolveWithRetry(ctx, sampleImage, 3))
		assert.EqualValues(t, 1, s.calls.Load())
	})
}

func TestResolveTrimsWhitespace(t *testing.T) {
	solver := NewSolver(&scriptedStrategy{answers: []string{" AB12 \n"}}, nil)
	assert.Equal(t, "AB12", solver.Resolve(context.Background(), sampleImage))
}

func TestManualWaitsAndNeverGuesses(t *testing.T) {
	m := NewManual(10 * time.Millisecond)
	start := time.Now()
	text, err := m.Resolve(context.Background(), sampleImage)
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewManual(time.Hour).Resolve(ctx, sampleImage)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessStripsPrefixAndReadsFirstLine(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	p := NewScript([]string{"sh", "-c", "cat; echo; echo ignored"}, time.Second)
	text, err := p.Resolve(context.Background(), sampleImage)
	require.NoError(t, err)
	assert.Equal(t, "QUJDRA==", text)
}

func TestProcessFailure(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	p := NewScript([]string{"sh", "-c", "echo broken >&2; exit 3"}, time.Second)
	_, err := p.Resolve(context.Background(), sampleImage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	_, err = NewScript(nil, time.Second).Resolve(context.Background(), sampleImage)
	assert.Error(t, err)
}

func TestDdddOCRDefaultsToPython(t *testing.T) {
	p := NewDdddOCR(nil, 0)
	assert.Equal(t, "ocr", p.Name())
	require.Len(t, p.command, 3)
	assert.Equal(t, "python3", p.command[0])
}

// newTwoCaptchaServer answers in.php with an id and res.php with
// CAPCHA_NOT_READY until readyAfter polls have been seen.
func newTwoCaptchaServer(t *testing.T, readyAfter int32, final string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/in.php":
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "k", r.PostForm.Get("key"))
			assert.Equal(t, "QUJDRA==", r.PostForm.Get("body"))
			_, _ = io.WriteString(w, `{"status":1,"request":"42"}`)
		case "/res.php":
			assert.Equal(t, "42", r.URL.Query().Get("id"))
			if polls.Add(1) < readyAfter {
				_, _ = io.WriteString(w, `{"status":0,"request":"CAPCHA_NOT_READY"}`)
				return
			}
			_, _ = io.WriteString(w, final)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &polls
}

func twoCaptchaConfig(endpoint string, rounds int) config.CaptchaConfig {
	return config.CaptchaConfig{
		Strategy:     "2captcha",
		APIKey:       "k",
		Endpoint:     endpoint,
		PollRounds:   rounds,
		PollInterval: time.Millisecond,
		MaxAttempts:  3,
	}
}

func TestTwoCaptcha(t *testing.T) {
	t.Run("polls until ready", func(t *testing.T) {
		srv, polls := newTwoCaptchaServer(t, 3, `{"status":1,"request":"W7XZ"}`)
		tc := NewTwoCaptcha(twoCaptchaConfig(srv.URL, 5), srv.Client())
		text, err := tc.Resolve(context.Background(), sampleImage)
		require.NoError(t, err)
		assert.Equal(t, "W7XZ", text)
		assert.EqualValues(t, 3, polls.Load())
	})

	t.Run("bounded polling rounds", func(t *testing.T) {
		srv, polls := newTwoCaptchaServer(t, 100, "")
		tc := NewTwoCaptcha(twoCaptchaConfig(srv.URL, 4), srv.Client())
		_, err := tc.Resolve(context.Background(), sampleImage)
		assert.ErrorIs(t, err, ErrUnresolved)
		assert.EqualValues(t, 4, polls.Load())
	})

	t.Run("service errors stop polling", func(t *testing.T) {
		srv, polls := newTwoCaptchaServer(t, 1, `{"status":0,"request":"ERROR_CAPTCHA_UNSOLVABLE"}`)
		tc := NewTwoCaptcha(twoCaptchaConfig(srv.URL, 10), srv.Client())
		_, err := tc.Resolve(context.Background(), sampleImage)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ERROR_CAPTCHA_UNSOLVABLE")
		assert.EqualValues(t, 1, polls.Load())
	})
}

func TestCustomAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"image":"QUJDRA=="}`, string(body))
		_, _ = io.WriteString(w, `{"result":"K9PQ"}`)
	}))
	defer srv.Close()

	api := NewCustomAPI(srv.URL, srv.Client())
	text, err := api.Resolve(context.Background(), sampleImage)
	require.NoError(t, err)
	assert.Equal(t, "K9PQ", text)
}

func TestGemini(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-test:generateContent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"  H4 xQ\n"}]}}]}`)
	}))
	defer srv.Close()

	cfg := config.CaptchaConfig{Strategy: "gemini", APIKey: "k", Endpoint: srv.URL, Model: "gemini-test", MaxAttempts: 3}
	g, err := NewGemini(context.Background(), cfg, srv.Client())
	require.NoError(t, err)

	text, err := g.Resolve(context.Background(), sampleImage)
	require.NoError(t, err)
	assert.Equal(t, "H4xQ", text)

	_, err = NewGemini(context.Background(), config.CaptchaConfig{}, nil)
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	t.Run("selects the configured strategy", func(t *testing.T) {
		cases := map[string]config.CaptchaConfig{
			"manual":   {Strategy: "manual", MaxAttempts: 3},
			"ocr":      {Strategy: "OCR", MaxAttempts: 3},
			"script":   {Strategy: "script", MaxAttempts: 3, Command: []string{"true"}},
			"2captcha": {Strategy: "2captcha", MaxAttempts: 3, APIKey: "k"},
			"api":      {Strategy: "api", MaxAttempts: 3, Endpoint: "http://ocr.local"},
		}
		for want, cfg := range cases {
			solver, err := New(cfg, zaptest.NewLogger(t))
			require.NoError(t, err, want)
			assert.Equal(t, want, solver.strategy.Name())
		}
	})

	t.Run("invalid configuration", func(t *testing.T) {
		_, err := New(config.CaptchaConfig{Strategy: "tesseract", MaxAttempts: 3}, nil)
		assert.Error(t, err)
	})
}

func TestWithProxy(t *testing.T) {
	manual := NewSolver(NewManual(0), nil)
	assert.Same(t, manual, manual.WithProxy("http://127.0.0.1:3128", time.Second))

	api := NewSolver(NewCustomAPI("http://ocr.local", http.DefaultClient), nil)
	assert.Same(t, api, api.WithProxy("", time.Second))

	bound, ok := api.WithProxy("http://127.0.0.1:3128", time.Second).(*Solver)
	require.True(t, ok)
	assert.NotSame(t, api, bound)
	assert.NotSame(t, api.strategy, bound.strategy)

	assert.Same(t, api, api.WithProxy("ftp://nope:21", time.Second), "unusable proxies fall back to direct calls")
}
