package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	token       string
	invalidated int
}

func (f *fakeTokens) Token(context.Context) (string, error) { return f.token, nil }
func (f *fakeTokens) Invalidate()                           { f.invalidated++ }

func encodeTestImage(t *testing.T, enc func(*bytes.Buffer, image.Image) error) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 32), G: uint8(y * 32), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, enc(&buf, img))
	return buf.Bytes()
}

func jpegImage(t *testing.T) []byte {
	return encodeTestImage(t, func(buf *bytes.Buffer, img image.Image) error {
		return jpeg.Encode(buf, img, nil)
	})
}

func pngImage(t *testing.T) []byte {
	return encodeTestImage(t, func(buf *bytes.Buffer, img image.Image) error {
		return png.Encode(buf, img)
	})
}

func TestExtractSuccess(t *testing.T) {
	var gotAuth string
	var gotBody extractRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true, "drinks": [{"name": "Espresso", "price": 2.7}, {"name": "Cappuccino", "price": 3.4}]}`))
	}))
	defer srv.Close()

	tokens := &fakeTokens{token: "tok-123"}
	client := NewHTTPClient(srv.URL, tokens, time.Second, nil)

	drinks, err := client.Extract(context.Background(), jpegImage(t))
	require.NoError(t, err)
	require.Len(t, drinks, 2)
	require.Equal(t, "Espresso", drinks[0].Name)
	require.Equal(t, 2.7, drinks[0].Price)

	require.Equal(t, "Bearer tok-123", gotAuth)
	require.Equal(t, "image/jpeg", gotBody.MediaType)
	payload, err := base64.StdEncoding.DecodeString(gotBody.Image)
	require.NoError(t, err)
	require.True(t, isJPEG(payload))
	require.Zero(t, tokens.invalidated)
}

func TestExtractStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, tokens *fakeTokens, err error)
	}{
		{
			name:   "unauthorized invalidates token",
			status: http.StatusUnauthorized,
			body:   `{}`,
			check: func(t *testing.T, tokens *fakeTokens, err error) {
				require.ErrorIs(t, err, ErrAuthentication)
				require.Equal(t, 1, tokens.invalidated)
			},
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{}`,
			check: func(t *testing.T, tokens *fakeTokens, err error) {
				require.ErrorIs(t, err, ErrRateLimited)
				require.Zero(t, tokens.invalidated)
			},
		},
		{
			name:   "server error carries message",
			status: http.StatusInternalServerError,
			body:   `{"error": "extraction_failed", "message": "model unavailable"}`,
			check: func(t *testing.T, tokens *fakeTokens, err error) {
				var serverErr *ServerError
				require.ErrorAs(t, err, &serverErr)
				require.Equal(t, http.StatusInternalServerError, serverErr.StatusCode)
				require.Equal(t, "model unavailable", serverErr.Message)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			tokens := &fakeTokens{token: "tok"}
			client := NewHTTPClient(srv.URL, tokens, time.Second, nil)
			_, err := client.Extract(context.Background(), jpegImage(t))
			tc.check(t, tokens, err)
		})
	}
}

func TestExtractRejectsMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success": true, "drinks": [{"name": "Espresso"}]}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, &fakeTokens{token: "tok"}, time.Second, nil)
	_, err := client.Extract(context.Background(), jpegImage(t))
	require.ErrorIs(t, err, ErrInvalidResponse)
}

func TestExtractUnsuccessfulResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "drinks": [], "message": "no menu detected"}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, &fakeTokens{token: "tok"}, time.Second, nil)
	_, err := client.Extract(context.Background(), jpegImage(t))
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	require.Equal(t, "no menu detected", serverErr.Message)
}

func TestExtractNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // refuse connections

	client := NewHTTPClient(srv.URL, &fakeTokens{token: "tok"}, time.Second, nil)
	_, err := client.Extract(context.Background(), jpegImage(t))
	require.ErrorIs(t, err, ErrNetwork)
}

func TestCompressForUpload(t *testing.T) {
	t.Run("small jpeg passes through", func(t *testing.T) {
		in := jpegImage(t)
		out, mediaType, err := CompressForUpload(in)
		require.NoError(t, err)
		require.Equal(t, in, out)
		require.Equal(t, "image/jpeg", mediaType)
	})

	t.Run("png is converted to jpeg", func(t *testing.T) {
		out, mediaType, err := CompressForUpload(pngImage(t))
		require.NoError(t, err)
		require.True(t, isJPEG(out))
		require.Equal(t, "image/jpeg", mediaType)
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, _, err := CompressForUpload([]byte("definitely not an image"))
		require.ErrorIs(t, err, ErrImageConversion)
	})
}
