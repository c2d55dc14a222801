// Package errors holds the errors that end an ingest-bigquery command before
// any event is handled: operator mistakes in configuration and failed
// start-up checks of the target dataset and staging bucket.
package errors

import (
	"errors"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// UserError is a problem the operator can fix, such as a missing environment
// variable or an unparsable dataset name. Error returns the message meant for
// the operator. Source keeps the underlying cause for the log.
type UserError struct {
	message string
	source  error
}

// NewUserError returns a UserError reporting message. source may be nil when
// the problem was detected directly rather than returned by a library.
func NewUserError(source error, message string) *UserError {
	return &UserError{
		message: message,
		source:  source,
	}
}

func (e *UserError) Unwrap() error {
	return e.source
}

func (e *UserError) Error() string {
	return e.message
}

// Source returns the underlying cause, if any.
func (e *UserError) Source() error {
	return e.source
}

// HandleFinalError reports an error returned by the process, serve or
// subscribe command and exits with status 1. Invalid configuration surfaces
// here as a UserError and is logged with its cause under the "source" field.
// Any other error, including a PrereqErr listing failed start-up checks, is
// printed to stderr verbatim so that its multi-line layout survives.
func HandleFinalError(err error) {
	var userError *UserError
	if errors.As(err, &userError) {
		log.WithFields(log.Fields{
			"source": userError.Source(),
		}).Fatal(userError)
	}

	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}

// PrereqErr accumulates the failures of start-up checks so that a single run
// reports all of them.
type PrereqErr struct {
	errs []error
}

// Err records a failed check.
func (e *PrereqErr) Err(err error) {
	e.errs = append(e.errs, err)
}

// Len is the number of failed checks.
func (e *PrereqErr) Len() int {
	return len(e.errs)
}

func (e *PrereqErr) Unwrap() []error {
	return e.errs
}

func (e *PrereqErr) Error() string {
	var b = new(strings.Builder)
	b.WriteString("ingestion cannot start due to the following error(s):")
	for _, err := range e.errs {
		b.WriteString("\n - ")
		b.WriteString(err.Error())
	}
	return b.String()
}
