//go:build darwin || linux

// Shared loader for the purego-backed native decoders.

package playback

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// nativeLib is a shared library opened once on first use.
type nativeLib struct {
	base    string // file name without prefix and extension, e.g. "media_vpx"
	envPath string // variable holding an explicit library path
	symbols func(handle uintptr) error

	once   sync.Once
	handle uintptr
	err    error
}

// load opens the library and binds its symbols. The result is cached.
func (l *nativeLib) load() error {
	l.once.Do(func() {
		l.err = l.open()
	})
	return l.err
}

func (l *nativeLib) open() error {
	var lastErr error
	for _, path := range l.paths() {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		if err := l.symbols(handle); err != nil {
			purego.Dlclose(handle)
			lastErr = err
			continue
		}
		l.handle = handle
		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("failed to load lib%s: %w", l.base, lastErr)
	}
	return errors.New("lib" + l.base + " not found in any standard location")
}

func (l *nativeLib) fileName() string {
	if runtime.GOOS == "darwin" {
		return "lib" + l.base + ".dylib"
	}
	return "lib" + l.base + ".so"
}

// paths lists candidate locations: explicit env overrides, the executable's
// directory, build/ directories around the working directory and module
// root, then bare and system paths.
func (l *nativeLib) paths() []string {
	libName := l.fileName()
	var paths []string

	if envPath := os.Getenv(l.envPath); envPath != "" {
		paths = append(paths, envPath)
	}
	if envPath := os.Getenv("PLAYBACK_LIB_PATH"); envPath != "" {
		paths = append(paths, filepath.Join(envPath, libName))
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, libName),
			filepath.Join(exeDir, "..", "lib", libName),
		)
	}

	if wd, err := os.Getwd(); err == nil {
		paths = append(paths,
			filepath.Join(wd, "build", libName),
			filepath.Join(wd, "build", "ffi", libName),
		)
	}
	if root := findModuleRoot(); root != "" {
		paths = append(paths,
			filepath.Join(root, "build", libName),
			filepath.Join(root, "build", "ffi", libName),
		)
	}

	paths = append(paths, libName)
	switch runtime.GOOS {
	case "darwin":
		paths = append(paths,
			filepath.Join("/usr/local/lib", libName),
			filepath.Join("/opt/homebrew/lib", libName),
		)
	case "linux":
		paths = append(paths,
			filepath.Join("/usr/local/lib", libName),
			filepath.Join("/usr/lib", libName),
		)
	}
	return paths
}

// goStringFromPtr converts a C string pointer to a Go string.
func goStringFromPtr(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	return cString(unsafe.Pointer(ptr))
}

// cString reads a NUL-terminated string of at most 1024 bytes at p.
func cString(p unsafe.Pointer) string {
	var length int
	for *(*byte)(unsafe.Add(p, length)) != 0 {
		length++
		if length > 1024 {
			break
		}
	}
	if length == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(p), length))
}

// findModuleRoot walks up from the working directory to the directory
// containing go.mod.
func findModuleRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// copyPlane copies rows of a native plane into a tightly packed slice.
func copyPlane(dst []byte, src uintptr, srcStride, width, height int) {
	copyRows(dst, unsafe.Pointer(src), srcStride, width, height)
}

func copyRows(dst []byte, src unsafe.Pointer, srcStride, width, height int) {
	for row := 0; row < height; row++ {
		line := unsafe.Slice((*byte)(unsafe.Add(src, row*srcStride)), width)
		copy(dst[row*width:(row+1)*width], line)
	}
}
