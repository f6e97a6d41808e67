package modeltypes

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/flytam/filenamify"
	getter "github.com/hashicorp/go-getter"
	"github.com/jumppad-labs/modeltypes/errors"
)

// Getter is the ArchiveFetcher used by the Registry
type Getter interface {
	// Fetch downloads the single file at src into the given folder. If the
	// file already exists at the given location Fetch does nothing unless
	// ignoreCache is true when the source will be downloaded regardless of
	// cache.
	//
	// Fetch returns the full path of the downloaded file, any url characters
	// in src are encoded so that the name is a valid filename.
	Fetch(ctx context.Context, src, destFolder string, ignoreCache bool) (string, error)
}

// GoGetter fetches archives using go-getter, http, https and file sources
// are supported
type GoGetter struct {
	timeout time.Duration
	get     func(ctx context.Context, src, dest, working string) error
}

// NewGoGetter creates a GoGetter, every fetch is bounded by timeout when
// timeout is greater than zero
func NewGoGetter(timeout time.Duration) *GoGetter {
	return &GoGetter{
		timeout: timeout,
		get: func(ctx context.Context, src, dest, working string) error {
			c := &getter.Client{
				Ctx:  ctx,
				Src:  src,
				Dst:  dest,
				Pwd:  working,
				Mode: getter.ClientModeFile,
				// archives are extracted by the Extractor, never by the client
				Decompressors: map[string]getter.Decompressor{},
				Getters: map[string]getter.Getter{
					"file":  &getter.FileGetter{Copy: true},
					"http":  &getter.HttpGetter{DoNotCheckHeadFirst: true},
					"https": &getter.HttpGetter{DoNotCheckHeadFirst: true},
				},
			}

			return c.Get()
		},
	}
}

// Fetch implements Getter
func (g *GoGetter) Fetch(ctx context.Context, src, dest string, ignoreCache bool) (string, error) {
	op := "fetch"

	if src == "" {
		return "", errors.InvalidArgument(op, "source url is required")
	}

	pwd, err := os.Getwd()
	if err != nil {
		return "", errors.TransientIO(op, err, "unable to determine working directory")
	}

	// ensure the output file is correctly encoded
	output, err := filenamify.Filenamify(src, filenamify.Options{
		Replacement: "_",
		MaxLength:   255,
	})
	if err != nil {
		return "", errors.InvalidArgument(op, "unable to derive a file name for %s: %s", src, err)
	}

	downloadPath := filepath.Join(dest, output)

	// check to see if the destination exists
	_, err = os.Stat(downloadPath)
	if err == nil && !ignoreCache {
		return downloadPath, nil
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	err = g.get(ctx, src, downloadPath, pwd)
	if err != nil {
		// never leave a partial download behind as it would be treated as cached
		os.Remove(downloadPath)
		return "", errors.TransientIO(op, err, "unable to fetch %s", src)
	}

	return downloadPath, nil
}
