package log

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Errors that stop the node during startup.
var (
	ErrMalformedConfig = newFatalErrorWithReason("ERR_MALFORMED_CONFIG", "config file is malformed")
	ErrBadFlags        = newFatalErrorWithReason("ERR_BAD_FLAGS", "bad CLI flags")
	ErrEnsureDataDir   = newFatalErrorWithArgs("ERR_ENSURE_DATA_DIR", "could not open/create data dir %v: %v")
	ErrDataDirLocked   = newFatalErrorWithArgs("ERR_DATA_DIR_LOCKED", "data dir %v is used by another process (lock %v)")
	ErrLoadKeys        = newFatalErrorWithReason("ERR_LOAD_KEYS", "could not load validator keys")
	ErrDeriveMultisig  = newFatalErrorWithReason("ERR_DERIVE_MULTISIG", "could not derive committee multisig")
)

// FatalError is an error that terminates the process with a stable code.
type FatalError struct {
	Code   string
	Text   string
	Args   []any
	Reason error
}

func newFatalErrorWithArgs(code, text string) func(args ...any) *FatalError {
	return func(args ...any) *FatalError {
		return &FatalError{
			Code: code,
			Text: text,
			Args: args,
		}
	}
}

func newFatalErrorWithReason(code, text string) func(reason error) *FatalError {
	return func(reason error) *FatalError {
		return &FatalError{
			Code:   code,
			Text:   text,
			Reason: reason,
		}
	}
}

func (fe *FatalError) Error() string {
	if fe.Reason != nil {
		return fmt.Sprintf("%v: %v", fe.Text, fe.Reason)
	}
	if len(fe.Args) != 0 {
		return fmt.Sprintf(fe.Text, fe.Args...)
	}
	return fe.Text
}

func (fe *FatalError) Unwrap() error { return fe.Reason }

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (fe *FatalError) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddString("code", fe.Code)
	encoder.AddString("error", fe.Error())
	return nil
}
