package pqerrors_test

import (
	"errors"
	"fmt"
	"io"

	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
)

// Example demonstrates basic error creation with details.
func Example() {
	err := pqerrors.New(pqerrors.ErrorTypeInvalidDecimal, "precision smaller than scale").
		WithDetail("column", "price").
		WithDetail("precision", 2).
		WithDetail("scale", 3)

	fmt.Println(err.Error())

	// Output:
	// invalid_decimal_spec: precision smaller than scale
}

// ExampleWrap shows how sink failures keep their cause.
func ExampleWrap() {
	err := pqerrors.Wrap(io.ErrShortWrite, pqerrors.ErrorTypeIO, "failed to write column chunk").
		WithDetail("row_group", 3)

	if pqerrors.IsType(err, pqerrors.ErrorTypeIO) {
		fmt.Println("This is an io error")
	}
	if errors.Is(err, io.ErrShortWrite) {
		fmt.Println("Cause was a short write")
	}

	// Output:
	// This is an io error
	// Cause was a short write
}

// ExampleError_Is demonstrates matching against sentinels.
func ExampleError_Is() {
	err := pqerrors.New(pqerrors.ErrorTypeSchemaMismatch, "column 1 changed type")

	fmt.Println(errors.Is(err, pqerrors.ErrSchemaMismatch))
	fmt.Println(errors.Is(err, pqerrors.ErrWriterClosed))

	// Output:
	// true
	// false
}

// ExampleIsFatalToCall shows how callers decide whether the output is still usable.
func ExampleIsFatalToCall() {
	mismatch := pqerrors.New(pqerrors.ErrorTypeSchemaMismatch, "schema changed")
	resource := pqerrors.New(pqerrors.ErrorTypeResource, "device allocation failed")

	fmt.Printf("schema mismatch: %v\n", pqerrors.IsFatalToCall(mismatch))
	fmt.Printf("resource: %v\n", pqerrors.IsFatalToCall(resource))

	// Output:
	// schema mismatch: true
	// resource: false
}
