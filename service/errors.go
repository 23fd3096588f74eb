package service

import (
	"context"
	"errors"
	"fmt"
	neturl "net/url"
	"syscall"

	"google.golang.org/api/googleapi"
)

type errTmpIf interface{ Temporary() bool }
type errTmp struct{ error }

func (t errTmp) Temporary() bool { return true }
func (t *errTmp) Unwrap() error  { return t.error }

// MakeTemporary marks the error as transient
func MakeTemporary(err error) error {
	if err == nil {
		return nil
	}
	return &errTmp{err}
}

// Temporary inspects the error trace and returns whether the error is transient
func Temporary(err error) bool {
	if err == nil {
		return false
	}
	var uerr *neturl.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EIO, syscall.EBUSY, syscall.ECANCELED, syscall.ECONNABORTED, syscall.ECONNRESET, syscall.ENOMEM, syscall.EPIPE:
			return true
		}
	}

	var tmp errTmpIf
	if errors.As(err, &tmp) {
		return tmp.Temporary()
	}
	var gapiError *googleapi.Error
	if errors.As(err, &gapiError) {
		switch gapiError.Code {
		case 429, 500, 502, 503:
			return true
		}
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// MergeErrors, appending texts
// if priorityToErr is true, priority to the first non-temporary error
// else, priority to no error, then to the temporary and finally to the other errors.
func MergeErrors(priorityToError bool, err error, newErrs ...error) error {
	if len(newErrs) == 0 {
		return err
	}
	newErr := newErrs[0]

	if newErr == nil {
		if !priorityToError {
			return nil
		}
	} else if err == nil {
		err = newErr
	} else if priorityToError != Temporary(err) {
		err = fmt.Errorf("%w\n %v", err, newErr)
	} else {
		err = fmt.Errorf("%w\n %v", newErr, err)
	}
	return MergeErrors(priorityToError, err, newErrs[1:]...)
}
