package catalog

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-getter"

	"github.com/teranos/shopper/errors"
	"github.com/teranos/shopper/logger"
)

// Resolve turns source into a readable local file.
// Supports:
//   - Local paths: /data/products.csv, ./products.csv, ~/products.csv
//   - HTTP(S) URLs: https://example.com/products.csv
//   - Anything else go-getter detects (s3::, gcs::, git::...//products.csv)
//
// Remote sources are downloaded to a temp directory; call cleanup when done.
func Resolve(ctx context.Context, source string) (string, func(), error) {
	noop := func() {}

	if source == "" {
		return "", noop, errors.NewInvalidRequestError("empty catalog source")
	}

	localPath := expandHome(source)
	if _, err := os.Stat(localPath); err == nil {
		return localPath, noop, nil
	}

	pwd, err := os.Getwd()
	if err != nil {
		return "", noop, errors.Wrap(err, "failed to get working directory")
	}

	detected, err := getter.Detect(source, pwd, getter.Detectors)
	if err != nil {
		return "", noop, errors.Wrapf(err, "failed to detect source type for %s", source)
	}

	parsed, err := url.Parse(detected)
	if err != nil {
		return "", noop, errors.Wrapf(err, "failed to parse detected URL %s", detected)
	}
	if parsed.Scheme == "file" || parsed.Scheme == "" {
		// Detection turned it into a local path that does not exist
		return "", noop, errors.Wrapf(errors.ErrNotFound, "catalog %s", source)
	}

	return fetch(ctx, source, detected, parsed)
}

func fetch(ctx context.Context, source, detected string, parsed *url.URL) (string, func(), error) {
	log := logger.ComponentLogger("catalog")

	tempDir, err := os.MkdirTemp("", "shopper-catalog-*")
	if err != nil {
		return "", func() {}, errors.Wrap(err, "failed to create temp directory")
	}
	cleanup := func() {
		log.Debugw("Cleaning up fetched catalog", "path", tempDir)
		os.RemoveAll(tempDir)
	}

	dst := filepath.Join(tempDir, sourceFileName(parsed))

	log.Infow("Fetching catalog",
		"source", source,
		"detected", detected,
		"destination", dst,
	)

	client := &getter.Client{
		Ctx:  ctx,
		Src:  detected,
		Dst:  dst,
		Mode: getter.ClientModeFile,
		// Default getters include http, s3, gcs and git
		Getters: getter.Getters,
	}
	if err := client.Get(); err != nil {
		cleanup()
		return "", func() {}, errors.Wrapf(err, "failed to fetch catalog %s", source)
	}

	return dst, cleanup, nil
}

// sourceFileName keeps the remote file name so the extension still selects the format.
func sourceFileName(u *url.URL) string {
	p := u.Path
	// git::https://host/repo//products.csv names a file inside the fetched tree
	if i := strings.Index(p, "//"); i >= 0 {
		p = p[i+2:]
	}
	name := path.Base(p)
	if name == "." || name == "/" || name == "" {
		return "catalog"
	}
	return name
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
