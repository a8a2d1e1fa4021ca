package chat

import (
	"errors"
	"time"
)

// error kinds surfaced to the user; match with errors.Is
var (
	ErrValidation = errors.New("validation")
	ErrChannel    = errors.New("channel")
	ErrUpload     = errors.New("upload")
)

// kindError carries a user-facing message while unwrapping to its kind.
type kindError struct {
	kind  error
	msg   string
	cause error
}

func (e *kindError) Error() string {
	return e.msg
}

func (e *kindError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.kind, e.cause}
	}
	return []error{e.kind}
}

func invalid(msg string) error {
	return &kindError{kind: ErrValidation, msg: msg}
}

func channelErr(msg string, cause error) error {
	return &kindError{kind: ErrChannel, msg: msg, cause: cause}
}

func uploadErr(msg string, cause error) error {
	return &kindError{kind: ErrUpload, msg: msg, cause: cause}
}

// Notice is an error shown to the user until it auto-dismisses.
type Notice struct {
	ID   uint64
	Err  error
	Text string
	At   time.Time
}

// Kind reports which of ErrValidation, ErrChannel or ErrUpload the notice belongs to.
func (n Notice) Kind() error {
	for _, kind := range []error{ErrValidation, ErrChannel, ErrUpload} {
		if errors.Is(n.Err, kind) {
			return kind
		}
	}
	return nil
}
