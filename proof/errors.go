package proof

import (
	"errors"
	"fmt"

	"xdao.co/proofs/storage"
)

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind/RuleID rather than matching error strings.
// Use errors.As to extract *Error for structured handling.
type Kind string

const (
	KindUsage                  Kind = "Usage"
	KindNotFound               Kind = "NotFound"
	KindValidation             Kind = "Validation"
	KindProofVerification      Kind = "ProofVerification"
	KindTransformationMismatch Kind = "TransformationMismatch"
	KindChainBreak             Kind = "ChainBreak"
	KindParse                  Kind = "Parse"
	KindIO                     Kind = "IO"
	KindInternal               Kind = "Internal"
)

// Error is the structured error type shared by the proof, build and
// provenance packages.
//
// RuleID names the violated rule (e.g. PROOF-CHAIN-002). Index is the
// 1-based line number for parse errors and the offending proof position for
// chain breaks; it is zero otherwise.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Index   int
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewError returns a structured error without a cause.
func NewError(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

// WrapError returns a structured error wrapping cause.
func WrapError(kind Kind, ruleID, msg string, cause error) error {
	if cause == nil {
		return NewError(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// WrapUnclassified is WrapError for causes that carry no Kind yet. A cause
// that already wraps a *Error keeps its own Kind and RuleID.
func WrapUnclassified(kind Kind, ruleID, msg string, cause error) error {
	var e *Error
	if errors.As(cause, &e) {
		return fmt.Errorf("%s: %w", msg, cause)
	}
	return WrapError(kind, ruleID, msg, cause)
}

func indexedError(kind Kind, ruleID string, index int, msg string, cause error) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Index: index, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}

// Exit codes shared by the command line tools.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitUsage      = 2
	ExitNotFound   = 3
	ExitValidation = 4
	ExitMismatch   = 5
	ExitChainBreak = 6
)

// ExitCode maps err to a process exit code. Unstructured storage sentinels
// are classified too, so a bare storage error still exits distinctly.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindUsage, KindParse:
			return ExitUsage
		case KindNotFound:
			return ExitNotFound
		case KindValidation, KindProofVerification:
			return ExitValidation
		case KindTransformationMismatch:
			return ExitMismatch
		case KindChainBreak:
			return ExitChainBreak
		default:
			return ExitFailure
		}
	}
	switch {
	case storage.IsNotFound(err):
		return ExitNotFound
	case storage.IsValidation(err):
		return ExitValidation
	default:
		return ExitFailure
	}
}

// FromStorage classifies a storage error for a single identity lookup.
func FromStorage(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case storage.IsNotFound(err):
		return WrapError(KindNotFound, "PROOF-STORE-001", msg, err)
	case storage.IsValidation(err):
		return WrapError(KindValidation, "PROOF-STORE-002", msg, err)
	case errors.Is(err, storage.ErrInvalidIdentity):
		return WrapError(KindValidation, "PROOF-STORE-003", msg, err)
	case errors.Is(err, storage.ErrUnsupported):
		return WrapError(KindUsage, "PROOF-STORE-005", msg+" (the store does not accept this identity algorithm; choose one with --algorithm)", err)
	default:
		return WrapError(KindIO, "PROOF-STORE-004", msg, err)
	}
}

// WrapStorePut wraps a failed Put under ruleID as an IO error, unless the
// store rejected the identity algorithm, which is a usage error.
func WrapStorePut(ruleID, msg string, err error) error {
	if errors.Is(err, storage.ErrUnsupported) {
		return FromStorage(err, msg)
	}
	return WrapError(KindIO, ruleID, msg, err)
}
