package knn

import "errors"

var (
	// ErrEmptyStore is returned by Predict when no examples have been added.
	ErrEmptyStore = errors.New("example store is empty")

	// ErrDimensionMismatch is returned when an embedding does not match the store dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidLabel is returned for an empty label.
	ErrInvalidLabel = errors.New("invalid label")
)
