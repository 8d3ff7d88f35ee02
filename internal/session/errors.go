package session

import (
	"errors"
	"fmt"
)

var (
	// ErrHandleNotFound means the handle was never issued or was destroyed.
	ErrHandleNotFound = errors.New("session: handle not found")
	// ErrNotConfigured means Run was called before a successful Configure.
	ErrNotConfigured = errors.New("session: context is not configured")
	// ErrConfig matches every *ConfigError.
	ErrConfig = errors.New("session: configuration failed")
	// ErrEmptyAudio means the decoded audio held no samples.
	ErrEmptyAudio = errors.New("audio buffer is empty after decoding")
	// ErrEngineFailure matches every *EngineError.
	ErrEngineFailure = errors.New("session: engine failure")
	// ErrBufferTooSmall means a fill call was given less room than the size query reported.
	ErrBufferTooSmall = errors.New("session: buffer too small")
	// ErrBusy means a Configure or Run overlapped another on the same context.
	ErrBusy = errors.New("session: context has an operation in flight")
	// ErrHandlesExhausted means the registry cannot issue another handle.
	ErrHandlesExhausted = errors.New("session: handle space exhausted")
)

// ConfigError reports a model that could not be bound. The context keeps
// its previous configuration.
type ConfigError struct {
	ModelPath string
	Err       error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("failed to configure model %q: %v", e.ModelPath, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// EngineError carries an inference engine failure. Its message is the
// engine's own, unaltered.
type EngineError struct {
	Stage string // "configure", "decode" or "infer"
	Msg   string
	Err   error
}

func (e *EngineError) Error() string { return e.Msg }

func (e *EngineError) Unwrap() error { return e.Err }

func (e *EngineError) Is(target error) bool { return target == ErrEngineFailure }

func engineError(stage string, err error) *EngineError {
	return &EngineError{Stage: stage, Msg: err.Error(), Err: err}
}

// invoke runs one engine call, converting a panic into an error.
func invoke(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	return fn()
}
