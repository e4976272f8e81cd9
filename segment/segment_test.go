package segment

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestHTTPClient_RemoveBackground(t *testing.T) {
	result := pngBytes(t, 300, 200)
	var gotUpload []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, removePath, r.URL.Path)
		f, _, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		gotUpload, _ = io.ReadAll(f)
		w.Header().Set("Content-Type", "image/png")
		w.Write(result)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", nil)
	res, err := c.RemoveBackground(t.Context(), []byte("raw-photo"))
	require.NoError(t, err)

	assert.Equal(t, []byte("raw-photo"), gotUpload)
	assert.Equal(t, result, res.Foreground)
	assert.Equal(t, 300, res.Width)
	assert.Equal(t, 200, res.Height)
}

func TestHTTPClient_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"ServerError", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"EmptyBody", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}},
		{"NotAnImage", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>oops</html>"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewHTTPClient(srv.URL, nil).RemoveBackground(t.Context(), []byte("photo"))
			assert.ErrorIs(t, err, ErrSegmentation)
		})
	}

	t.Run("ResizedResult", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write(pngBytes(t, 10, 10))
		}))
		defer srv.Close()

		_, err := NewHTTPClient(srv.URL, nil).RemoveBackground(t.Context(), pngBytes(t, 300, 200))
		assert.ErrorIs(t, err, ErrSegmentation)
	})

	t.Run("EmptyInput", func(t *testing.T) {
		_, err := NewHTTPClient("http://127.0.0.1:0", nil).RemoveBackground(t.Context(), nil)
		assert.ErrorIs(t, err, ErrSegmentation)
	})

	t.Run("Unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		_, err := NewHTTPClient(url, nil).RemoveBackground(t.Context(), []byte("photo"))
		assert.ErrorIs(t, err, ErrSegmentation)
	})
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	failing := GatewayFunc(func(ctx context.Context, img []byte) (Result, error) {
		calls.Add(1)
		return Result{}, errors.New("engine down")
	})

	var mu sync.Mutex
	var transitions []gobreaker.State
	b := NewBreaker(failing, BreakerSettings{
		ConsecutiveFailures: 3,
		OpenTimeout:         time.Hour,
		OnStateChange: func(_ string, _, to gobreaker.State) {
			mu.Lock()
			transitions = append(transitions, to)
			mu.Unlock()
		},
	})

	for i := 0; i < 3; i++ {
		_, err := b.RemoveBackground(t.Context(), []byte("x"))
		require.ErrorIs(t, err, ErrSegmentation)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.RemoveBackground(t.Context(), []byte("x"))
	assert.ErrorIs(t, err, ErrSegmentation)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(3), calls.Load(), "open breaker must not call the engine")

	mu.Lock()
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)
	mu.Unlock()
}

func TestBreaker_PassesThroughSuccess(t *testing.T) {
	ok := GatewayFunc(func(ctx context.Context, img []byte) (Result, error) {
		return Result{Foreground: img, Width: 1, Height: 1}, nil
	})
	res, err := NewBreaker(ok, BreakerSettings{}).RemoveBackground(t.Context(), []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), res.Foreground)
}

func TestLimited_BoundsConcurrency(t *testing.T) {
	var active, maxSeen atomic.Int32
	slow := GatewayFunc(func(ctx context.Context, img []byte) (Result, error) {
		n := active.Add(1)
		for {
			m := maxSeen.Load()
			if n <= m || maxSeen.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return Result{Width: 1, Height: 1}, nil
	})

	l := NewLimited(slow, 2)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.RemoveBackground(context.Background(), []byte("x"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, maxSeen.Load(), int32(2))
}

func TestLimited_ContextDoneWhileWaiting(t *testing.T) {
	release := make(chan struct{})
	blocking := GatewayFunc(func(ctx context.Context, img []byte) (Result, error) {
		<-release
		return Result{}, nil
	})
	l := NewLimited(blocking, 1)

	go l.RemoveBackground(context.Background(), []byte("holder"))
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err := l.RemoveBackground(ctx, []byte("waiter"))
	assert.ErrorIs(t, err, ErrSegmentation)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}
