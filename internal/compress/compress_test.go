package compress

import (
	"bytes"
	"compress/gzip"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gunzip(t *testing.T, data []byte) string {
	t.Helper()

	zr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)

	defer zr.Close()

	out, err := io.ReadAll(zr)
	require.NoError(t, err)

	return string(out)
}

func TestGzipRoundTrip(t *testing.T) {
	g, err := NewGzip(gzip.DefaultCompression)
	require.NoError(t, err)

	out, err := g.Compress([]byte("INFO [main] hello\n"))
	require.NoError(t, err)

	assert.Equal(t, "INFO [main] hello\n", gunzip(t, out))
	assert.Equal(t, "gzip", g.Encoding())
}

func TestGzipMembersConcatenate(t *testing.T) {
	g, err := NewGzip(gzip.BestSpeed)
	require.NoError(t, err)

	var body []byte

	for _, line := range []string{"one\n", "two\n", "three\n"} {
		member, err := g.Compress([]byte(line))
		require.NoError(t, err)

		body = append(body, member...)
	}

	assert.Equal(t, "one\ntwo\nthree\n", gunzip(t, body))
}

func TestGzipConcurrentUse(t *testing.T) {
	g, err := NewGzip(gzip.DefaultCompression)
	require.NoError(t, err)

	var wg sync.WaitGroup

	for range 16 {
		wg.Go(func() {
			out, err := g.Compress([]byte("concurrent\n"))
			assert.NoError(t, err)
			assert.Equal(t, "concurrent\n", gunzip(t, out))
		})
	}

	wg.Wait()
}

func TestNewGzipRejectsInvalidLevel(t *testing.T) {
	_, err := NewGzip(42)
	require.Error(t, err)
}

func TestNew(t *testing.T) {
	c, err := New(false, gzip.DefaultCompression)
	require.NoError(t, err)
	assert.IsType(t, Identity{}, c)
	assert.Empty(t, c.Encoding())

	out, err := c.Compress([]byte("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", string(out))

	c, err = New(true, gzip.DefaultCompression)
	require.NoError(t, err)
	assert.Equal(t, "gzip", c.Encoding())
}
