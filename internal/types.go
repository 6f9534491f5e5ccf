package internal

import "fmt"

// Document is a single translation job input. Content holds the raw bytes
// as uploaded; decoding happens inside the run so that undecodable input
// surfaces as a FormatError.
type Document struct {
	Content    []byte `json:"-"`
	Filename   string `json:"filename"`
	TargetLang string `json:"target_lang"`
}

// ConfigError reports missing or invalid provider, credential or engine
// configuration. It is fatal and raised before any chunk is processed.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration: %v", e.Err)
	}
	return fmt.Sprintf("invalid configuration: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// FormatError reports input that cannot be decoded as a text document.
type FormatError struct {
	Filename string
	Err      error
}

func (e *FormatError) Error() string {
	if e.Filename == "" {
		return fmt.Sprintf("malformed document: %v", e.Err)
	}
	return fmt.Sprintf("malformed document %s: %v", e.Filename, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }
