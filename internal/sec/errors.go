package sec

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks at the command boundary.
var (
	// ErrSourceUnavailable means the index transfer never produced a complete file.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrMalformedRecord means a holding lacked a required field.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrConfiguration means the run options were rejected before any network activity.
	ErrConfiguration = errors.New("invalid configuration")
)

// SourceUnavailableError is returned once every index attempt has failed.
type SourceUnavailableError struct {
	URL      string
	Attempts int
	Err      error // last attempt's error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source unavailable: %s after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

func (e *SourceUnavailableError) Is(target error) bool { return target == ErrSourceUnavailable }

// FetchFailedError is returned when a single filing document cannot be retrieved.
type FetchFailedError struct {
	URL string
	Err error
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchFailedError) Unwrap() error { return e.Err }

// MalformedRecordError identifies the holding (by position in its document)
// and the required field that was missing or unusable.
type MalformedRecordError struct {
	Index int
	Field string
	Value string
}

func (e *MalformedRecordError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("malformed record: holding %d: missing %s", e.Index, e.Field)
	}
	return fmt.Sprintf("malformed record: holding %d: invalid %s %q", e.Index, e.Field, e.Value)
}

func (e *MalformedRecordError) Is(target error) bool { return target == ErrMalformedRecord }

// ConfigError rejects a single option.
type ConfigError struct {
	Field  string
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }
