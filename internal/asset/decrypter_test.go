package asset

import (
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/lineup/internal/crypt"
)

const (
	testKey = "k9:3zeFq~]-EQMF,gpGx*uRw+x,n]xw9"
	testIV  = "Zd3!t#t1YN=!fs)D"
)

func newCipher(t *testing.T) *crypt.AssetCipher {
	t.Helper()
	c, err := crypt.NewAssetCipher(testKey, testIV)
	require.NoError(t, err)
	return c
}

func TestDecryptImage(t *testing.T) {
	c := newCipher(t)
	img := []byte("\xff\xd8\xff\xe0 fake jpeg bytes")

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/ad/banner.bin":
			_, _ = w.Write(c.Encrypt(img))
		case "/ad/garbage.bin":
			_, _ = w.Write([]byte("not encrypted"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	d := New(Options{ImageHost: srv.URL + "/", Cipher: c})

	t.Run("decrypts and caches", func(t *testing.T) {
		uri, err := d.DecryptImage(t.Context(), "/ad/banner.bin")
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(uri, "data:image/jpeg;base64,"))

		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/jpeg;base64,"))
		require.NoError(t, err)
		assert.Equal(t, img, decoded)
		assert.True(t, d.Cached("/ad/banner.bin"))

		before := hits.Load()
		again, err := d.DecryptImage(t.Context(), "/ad/banner.bin")
		require.NoError(t, err)
		assert.Equal(t, uri, again)
		assert.Equal(t, before, hits.Load(), "cached image must not be fetched again")
	})

	t.Run("clear cache forces a refetch", func(t *testing.T) {
		d.ClearCache()
		assert.False(t, d.Cached("/ad/banner.bin"))

		before := hits.Load()
		_, err := d.DecryptImage(t.Context(), "/ad/banner.bin")
		require.NoError(t, err)
		assert.Equal(t, before+1, hits.Load())
	})

	t.Run("undecryptable payload", func(t *testing.T) {
		_, err := d.DecryptImage(t.Context(), "/ad/garbage.bin")
		assert.True(t, errors.Is(err, ErrEmptyImage))
		assert.False(t, d.Cached("/ad/garbage.bin"))
	})

	t.Run("non 2xx", func(t *testing.T) {
		_, err := d.DecryptImage(t.Context(), "/ad/missing.bin")
		assert.True(t, errors.Is(err, ErrBadStatus))
	})
}

func TestURL(t *testing.T) {
	d := New(Options{ImageHost: "https://img.example.ext/", Cipher: newCipher(t)})
	assert.Equal(t, "https://img.example.ext/a.bin", d.URL("/a.bin"))
	assert.Equal(t, "https://img.example.ext/a.bin", d.URL("a.bin"))
}

func TestDecrypters_DoNotShareCache(t *testing.T) {
	c := newCipher(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(c.Encrypt([]byte("x")))
	}))
	defer srv.Close()

	a := New(Options{ImageHost: srv.URL, Cipher: c})
	b := New(Options{ImageHost: srv.URL, Cipher: c})

	_, err := a.DecryptImage(t.Context(), "/one")
	require.NoError(t, err)
	assert.True(t, a.Cached("/one"))
	assert.False(t, b.Cached("/one"))
}
