package models

import (
	"errors"
	"fmt"
)

var (
	ErrAcquisition         = errors.New("acquisition failed")
	ErrUnsupportedFormat   = errors.New("unsupported format")
	ErrInsufficientContent = errors.New("insufficient content")
	ErrEmbeddingAlignment  = errors.New("embedding alignment mismatch")
	ErrSynthesis           = errors.New("synthesis failed")
	ErrTenantMismatch      = errors.New("tenant mismatch")
	ErrResourceNotFound    = errors.New("resource not found")
	ErrWrongResourceKind   = errors.New("wrong resource kind")
	ErrEmptyQuery          = errors.New("empty query")
)

type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Ext == "" {
		return "unsupported file format: no extension"
	}
	return fmt.Sprintf("unsupported file format: %s", e.Ext)
}

func (e *UnsupportedFormatError) Is(target error) bool {
	return target == ErrUnsupportedFormat
}

// InsufficientContentError reports extracted text shorter than the
// configured minimum. Strategy names the acquisition path that produced it.
type InsufficientContentError struct {
	Strategy string
	Source   string
	Length   int
	Min      int
}

func (e *InsufficientContentError) Error() string {
	return fmt.Sprintf("insufficient content from %s strategy for %s: %d chars, need %d",
		e.Strategy, e.Source, e.Length, e.Min)
}

func (e *InsufficientContentError) Is(target error) bool {
	return target == ErrInsufficientContent
}
