package ports

// Platform provides the OS checks the session runs before acquiring anything.
type Platform interface {
	// Identity returns a stable worker identity string.
	Identity() (string, error)

	// EnsureWritableDir creates dir if needed and verifies a file can be written into it.
	EnsureWritableDir(dir string) error

	// LookPath resolves an executable like exec.LookPath.
	LookPath(bin string) (string, error)

	// Supported reports whether this OS can run the capture pipeline.
	Supported() bool

	// Join joins path elements (like filepath.Join).
	Join(elem ...string) string
}
