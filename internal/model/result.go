package model

import (
	"errors"

	"github.com/rotisserie/eris"
)

var (
	ErrEmptyCorpus      = eris.New("empty corpus")
	ErrInsufficientText = eris.New("insufficient text")
	ErrModelFailure     = eris.New("model failure")
	ErrNotFound         = eris.New("not found")
)

// ErrorKind enumerates terminal evaluation failures
type ErrorKind string

const (
	KindExtractionFailure ErrorKind = "extraction_failure"
	KindEmptyCorpus       ErrorKind = "empty_corpus"
	KindModelFailure      ErrorKind = "model_failure"
	KindInvalidInput      ErrorKind = "invalid_input"
	KindCanceled          ErrorKind = "canceled"
)

// Failure is the failure variant of Result
type Failure struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Result is either a report or a failure, never both
type Result struct {
	Success bool     `json:"success"`
	Report  *Report  `json:"report,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}

// Succeeded wraps a report
func Succeeded(report *Report) Result {
	return Result{Success: true, Report: report}
}

// Failed builds a failure result
func Failed(kind ErrorKind, message string) Result {
	return Result{Success: false, Failure: &Failure{Kind: kind, Message: message}}
}

// FailedFrom maps an error onto a failure kind using the sentinel errors
func FailedFrom(err error) Result {
	switch {
	case errors.Is(err, ErrInsufficientText):
		return Failed(KindExtractionFailure, err.Error())
	case errors.Is(err, ErrEmptyCorpus):
		return Failed(KindEmptyCorpus, err.Error())
	case errors.Is(err, ErrModelFailure):
		return Failed(KindModelFailure, err.Error())
	default:
		return Failed(KindModelFailure, err.Error())
	}
}

// OK reports whether the result carries a report
func (r Result) OK() bool {
	return r.Success && r.Report != nil
}
