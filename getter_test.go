package modeltypes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jumppad-labs/modeltypes/errors"
	"github.com/stretchr/testify/require"
)

type getterCall struct {
	src     string
	dest    string
	working string
}

func setupMockGetter(t *testing.T, err error) (*GoGetter, *[]getterCall) {
	calls := &[]getterCall{}

	g := &GoGetter{
		get: func(ctx context.Context, src, dest, working string) error {
			*calls = append(*calls, getterCall{
				src:     src,
				dest:    dest,
				working: working,
			})

			// simulate a download, partial when err is set
			os.WriteFile(dest, []byte("content"), 0644)

			return err
		},
	}

	return g, calls
}

func TestGetterDoesNothingWhenFileExistsAndIgnoreCacheFalse(t *testing.T) {
	dest := t.TempDir()

	g, calls := setupMockGetter(t, nil)

	first, err := g.Fetch(context.Background(), "https://example.com/test.zip", dest, true)
	require.NoError(t, err)

	second, err := g.Fetch(context.Background(), "https://example.com/test.zip", dest, false)
	require.NoError(t, err)

	require.Len(t, *calls, 1)
	require.Equal(t, first, second)
}

func TestGetterCallsGetWhenFileExistsAndIgnoreCacheTrue(t *testing.T) {
	dest := t.TempDir()

	g, calls := setupMockGetter(t, nil)

	_, err := g.Fetch(context.Background(), "https://example.com/test.zip", dest, true)
	require.NoError(t, err)

	_, err = g.Fetch(context.Background(), "https://example.com/test.zip", dest, true)
	require.NoError(t, err)

	require.Len(t, *calls, 2)
}

func TestGetterCallsGetWithEncodedOutputFile(t *testing.T) {
	g, calls := setupMockGetter(t, nil)

	_, err := g.Fetch(context.Background(), "example.com/modeshape/archive.zip?ref=3.8.1", t.TempDir(), false)
	require.NoError(t, err)

	require.Len(t, *calls, 1)
	require.Equal(t, "example.com_modeshape_archive.zip_ref=3.8.1", filepath.Base((*calls)[0].dest))
}

func TestGetterReturnsErrorAndRemovesPartialDownload(t *testing.T) {
	dest := t.TempDir()

	g, calls := setupMockGetter(t, fmt.Errorf("connection reset"))

	_, err := g.Fetch(context.Background(), "https://example.com/test.zip", dest, true)
	require.Error(t, err)
	require.ErrorIs(t, err, errors.ErrTransientIO)
	require.Len(t, *calls, 1)

	entries, _ := os.ReadDir(dest)
	require.Empty(t, entries)
}

func TestGetterReturnsErrorForEmptySource(t *testing.T) {
	g, calls := setupMockGetter(t, nil)

	_, err := g.Fetch(context.Background(), "", t.TempDir(), true)
	require.ErrorIs(t, err, errors.ErrInvalidArgument)
	require.Len(t, *calls, 0)
}

func TestGetterAppliesTimeoutToContext(t *testing.T) {
	var deadline bool

	g := &GoGetter{
		timeout: time.Minute,
		get: func(ctx context.Context, src, dest, working string) error {
			_, deadline = ctx.Deadline()
			return nil
		},
	}

	_, err := g.Fetch(context.Background(), "https://example.com/test.zip", t.TempDir(), true)
	require.NoError(t, err)
	require.True(t, deadline)
}

func TestGoGetterDownloadsFileOverHTTP(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/archive.zip" {
			http.NotFound(w, r)
			return
		}

		w.Write([]byte("archive content"))
	}))
	defer ts.Close()

	g := NewGoGetter(10 * time.Second)

	download, err := g.Fetch(context.Background(), ts.URL+"/archive.zip", t.TempDir(), false)
	require.NoError(t, err)

	d, err := os.ReadFile(download)
	require.NoError(t, err)
	require.Equal(t, "archive content", string(d))
}

func TestGoGetterReturnsErrorForMissingFile(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	g := NewGoGetter(10 * time.Second)
	dest := t.TempDir()

	_, err := g.Fetch(context.Background(), ts.URL+"/archive.zip", dest, false)
	require.ErrorIs(t, err, errors.ErrTransientIO)

	entries, _ := os.ReadDir(dest)
	require.Empty(t, entries)
}

func TestGoGetterCopiesLocalFiles(t *testing.T) {
	src := filepath.Join(t.TempDir(), "archive.zip")
	os.WriteFile(src, []byte("local"), 0644)

	g := NewGoGetter(0)

	download, err := g.Fetch(context.Background(), "file://"+src, t.TempDir(), false)
	require.NoError(t, err)

	d, err := os.ReadFile(download)
	require.NoError(t, err)
	require.Equal(t, "local", string(d))
}
