// Package modeltest provides the test model module and resource directories for it.
//
// testdata/models.wasm is assembled from testdata/models.wat and exports the
// Adder, Chatty and Faulty classes described there.
package modeltest

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/wippyai/wasm-fmu/config"
	"github.com/wippyai/wasm-fmu/location"
)

//go:embed testdata/models.wasm
var Wasm []byte

// Classes exported by the test module.
const (
	Adder  = "Adder"
	Chatty = "Chatty"
	Faulty = "Faulty"
)

// Value references of the Adder class.
const (
	RefInput0 uint32 = 0
	RefInput1 uint32 = 1
	RefOutput uint32 = 2
)

// DefaultScript is the script name written by Dir.
const DefaultScript = "models.wasm"

// Option adjusts the resource directory written by Dir.
type Option func(*options)

type options struct {
	script string
}

// Script stores the module under a different relative path.
func Script(name string) Option {
	return func(o *options) { o.script = name }
}

// Write lays out a resource directory for class in dir.
func Write(dir, class, script string) error {
	path := filepath.Join(dir, filepath.FromSlash(script))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, Wasm, 0o644); err != nil {
		return err
	}
	doc, err := json.Marshal(map[string]string{
		"main_script": script,
		"main_class":  class,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(config.DescriptorPath(dir), doc, 0o644)
}

// Dir writes a resource directory for class into a fresh temp dir.
func Dir(tb testing.TB, class string, opts ...Option) string {
	tb.Helper()
	o := options{script: DefaultScript}
	for _, opt := range opts {
		opt(&o)
	}
	dir := tb.TempDir()
	if err := Write(dir, class, o.script); err != nil {
		tb.Fatalf("write resources: %v", err)
	}
	return dir
}

// URI returns the file URI of dir.
func URI(tb testing.TB, dir string) string {
	tb.Helper()
	uri, err := location.PathToFileURI(dir)
	if err != nil {
		tb.Fatalf("file uri: %v", err)
	}
	return uri
}

// Configuration resolves the descriptor in dir.
func Configuration(tb testing.TB, dir string) config.Configuration {
	tb.Helper()
	cfg, err := config.Resolve(dir)
	if err != nil {
		tb.Fatalf("resolve configuration: %v", err)
	}
	return cfg
}
