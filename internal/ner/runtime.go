package ner

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

const (
	defaultIntraThreads = 1
	defaultInterThreads = 1
)

// RuntimeSettings controls ONNX session pooling and threading.
type RuntimeSettings struct {
	PoolSize     int
	IntraThreads int
	InterThreads int
}

// ResolveRuntime fills zero values, letting ENTITYSHIELD_MAX_SESSIONS cap
// the pool size.
func ResolveRuntime(rt RuntimeSettings) RuntimeSettings {
	if v := strings.TrimSpace(os.Getenv("ENTITYSHIELD_MAX_SESSIONS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && (rt.PoolSize <= 0 || n < rt.PoolSize) {
			rt.PoolSize = n
		}
	}
	if rt.PoolSize <= 0 {
		rt.PoolSize = 1
	}
	if rt.PoolSize > runtime.NumCPU() {
		rt.PoolSize = runtime.NumCPU()
	}
	if rt.IntraThreads <= 0 {
		rt.IntraThreads = defaultIntraThreads
	}
	if rt.InterThreads <= 0 {
		rt.InterThreads = defaultInterThreads
	}
	return rt
}

// resolveSharedLibraryPath locates a platform-specific onnxruntime shared library.
// ONNXRUNTIME_SHARED_LIBRARY_PATH wins; otherwise common names/locations are probed.
func resolveSharedLibraryPath(modelDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}

	names := []string{
		"libonnxruntime.dylib",
		"onnxruntime.dylib",
		"libonnxruntime.so",
		"onnxruntime.so",
		"onnxruntime.dll",
	}
	dirs := []string{
		modelDir,
		filepath.Join(modelDir, "lib"),
		".",
		"/opt/homebrew/lib",
		"/usr/local/lib",
		"/usr/lib",
	}

	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}

// resolveModelPath prefers a quantized export over the full-precision one.
func resolveModelPath(modelDir string) string {
	for _, name := range []string{"model.int8.onnx", "model.onnx", filepath.Join("onnx", "model.onnx")} {
		candidate := filepath.Join(modelDir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
