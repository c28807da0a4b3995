// Package casterr defines the error taxonomy shared by every Cast
// component and the mapping from that taxonomy to engine-level exit
// codes (see spec §6 and §7).
package casterr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Exit codes surfaced to the CLI.
const (
	ExitSuccess         = 0
	ExitConfigError     = 2
	ExitConflictsRemain = 3
	ExitFilesystemError = 4
	ExitLockTimeout     = 5
)

// Category buckets the taxonomy from spec §7 so ExitCode can be a small
// table lookup instead of a type switch over a dozen concrete types.
type Category int

const (
	CategoryStructural Category = iota
	CategoryFilesystem
	CategoryPlanning
	CategoryConcurrency
)

// Typed marks any Cast error that knows which taxonomy category it
// belongs to.
type Typed interface {
	error
	Category() Category
}

type taggedError struct {
	category Category
	cause    error
}

func (e *taggedError) Error() string   { return e.cause.Error() }
func (e *taggedError) Cause() error    { return e.cause }
func (e *taggedError) Unwrap() error   { return e.cause }
func (e *taggedError) Category() Category { return e.category }

func wrap(category Category, cause error) *taggedError {
	return &taggedError{category: category, cause: cause}
}

// MalformedHeader reports a header block that could not be parsed.
func MalformedHeader(path string, cause error) error {
	return wrap(CategoryStructural, errors.Wrapf(cause, "malformed header in %s", path))
}

// Encoding reports content that failed UTF-8 decoding.
func Encoding(path string, cause error) error {
	return wrap(CategoryStructural, errors.Wrapf(cause, "invalid encoding in %s", path))
}

// DuplicateID reports two or more paths sharing one cast-id.
func DuplicateID(id string, paths []string) error {
	return wrap(CategoryStructural, fmt.Errorf("duplicate cast-id %s at paths %v", id, paths))
}

// IndexCorrupted reports an index.json that failed to parse or whose
// invariants do not hold after a build.
func IndexCorrupted(cause error) error {
	return wrap(CategoryStructural, errors.Wrap(cause, "index corrupted"))
}

// PermissionDenied wraps an os.PermissionError-class failure for one action.
func PermissionDenied(path string, cause error) error {
	return wrap(CategoryFilesystem, errors.Wrapf(cause, "permission denied: %s", path))
}

// IO wraps a generic filesystem failure for one action.
func IO(path string, cause error) error {
	return wrap(CategoryFilesystem, errors.Wrapf(cause, "io error: %s", path))
}

// PathCollision reports a CREATE landing on an existing, unrelated path.
func PathCollision(path string) error {
	return wrap(CategoryFilesystem, fmt.Errorf("path collision at %s", path))
}

// MissingBaseline reports a peer-state baseline digest with no backing object.
func MissingBaseline(id, digest string) error {
	return wrap(CategoryPlanning, fmt.Errorf("missing baseline object %s for %s", digest, id))
}

// IneligiblePair reports an identifier elided because cast-vaults does
// not name both sides of the sync.
func IneligiblePair(id string) error {
	return wrap(CategoryPlanning, fmt.Errorf("%s is not eligible for this vault pair", id))
}

// LockTimeout reports a failure to acquire the vault lock within the
// configured timeout.
func LockTimeout(path string, cause error) error {
	return wrap(CategoryConcurrency, errors.Wrapf(cause, "timed out acquiring lock %s", path))
}

// StaleLock reports a lock file whose recorded holder is no longer live.
func StaleLock(path string) error {
	return wrap(CategoryConcurrency, fmt.Errorf("stale lock detected at %s", path))
}

// ErrUnsupportedVersion reports a cast-version the engine refuses to operate on.
var ErrUnsupportedVersion = errors.New("unsupported cast-version")

// ConfigError reports a malformed or invalid .cast/config.yaml.
func ConfigError(path string, cause error) error {
	return &configError{errors.Wrapf(cause, "invalid configuration: %s", path)}
}

type configError struct{ cause error }

func (e *configError) Error() string           { return e.cause.Error() }
func (e *configError) Cause() error            { return e.cause }
func (e *configError) Unwrap() error           { return e.cause }
func (e *configError) Category() Category      { return CategoryStructural }

// ExitCode maps an accumulated run error to the engine-level exit code
// from spec §6. A nil error is success. It does not know about
// unresolved conflicts: runreport.Report.ExitCode calls it for a fatal
// error first and only otherwise returns ExitConflictsRemain when
// conflicts were recorded.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if errors.Is(err, ErrUnsupportedVersion) {
		return ExitConfigError
	}
	var t Typed
	if errors.As(err, &t) {
		switch t.Category() {
		case CategoryFilesystem:
			return ExitFilesystemError
		case CategoryConcurrency:
			return ExitLockTimeout
		default:
			return ExitConfigError
		}
	}
	return ExitFilesystemError
}
