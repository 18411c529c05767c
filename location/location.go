// Package location converts the resource locator handed over by the host into a
// native filesystem path.
package location

import (
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/wippyai/wasm-fmu/errors"
)

// FileURIToPath converts a file URI into an existing absolute native path.
//
// Accepted forms are file:///abs, file:/abs and file://localhost/abs.
// Any other host is a UNC share on Windows and rejected elsewhere.
func FileURIToPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", errors.New(errors.PhaseResolve, errors.KindMalformedURI).
			Value(uri).
			Cause(err).
			Detail("cannot parse %q", uri).
			Build()
	}
	if u.Scheme == "" {
		return "", errors.MalformedURI(uri, "missing scheme")
	}
	if !strings.EqualFold(u.Scheme, "file") {
		return "", errors.MalformedURI(uri, "unsupported scheme "+u.Scheme)
	}
	if u.Opaque != "" {
		return "", errors.MalformedURI(uri, "relative file URI")
	}

	p := u.Path
	switch {
	case u.Host == "" || strings.EqualFold(u.Host, "localhost"):
	case runtime.GOOS == "windows":
		p = "//" + u.Host + p
	default:
		return "", errors.MalformedURI(uri, "remote host "+u.Host)
	}

	p = filepath.Clean(filepath.FromSlash(trimDriveSlash(p)))
	if !filepath.IsAbs(p) {
		return "", errors.MalformedURI(uri, "path is not absolute")
	}
	if _, err := os.Stat(p); err != nil {
		return "", errors.UnresolvablePath(p, err)
	}
	return p, nil
}

// PathToFileURI renders a native path as a file URI accepted by FileURIToPath.
func PathToFileURI(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrap(errors.PhaseResolve, errors.KindUnresolvablePath, err, path)
	}
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{Scheme: "file", Path: p}
	if strings.HasPrefix(p, "//") {
		// UNC share: \\host\share\x
		host, rest, _ := strings.Cut(strings.TrimPrefix(p, "//"), "/")
		u.Host = host
		u.Path = "/" + rest
	}
	return u.String(), nil
}

// trimDriveSlash turns /C:/dir into C:/dir.
func trimDriveSlash(p string) string {
	if len(p) >= 3 && p[0] == '/' && p[2] == ':' && isLetter(p[1]) {
		return p[1:]
	}
	return p
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
