// Package appargs provides argument validation routines for use with
// github.com/urfave/cli.
package appargs

import (
	"errors"
	"strconv"

	"github.com/urfave/cli"
)

// Validator is an argument validator function. It returns the number of
// arguments consumed or -1 on error.
type Validator = func([]string) int

// RequiredNonEmpty is a validator for a single required parameter that must not be
// empty.
func RequiredNonEmpty(args []string) int {
	if len(args) == 0 || args[0] == "" {
		return -1
	}
	return 1
}

// Uint32 is a validator for a single required parameter holding a 32 bit id.
func Uint32(args []string) int {
	if len(args) == 0 {
		return -1
	}
	if _, err := strconv.ParseUint(args[0], 0, 32); err != nil {
		return -1
	}
	return 1
}

// Optional wraps v so that a missing parameter is accepted.
func Optional(v Validator) Validator {
	return func(args []string) int {
		if len(args) == 0 {
			return 0
		}
		return v(args)
	}
}

// ErrInvalidUsage is returned when there is a validation error.
var ErrInvalidUsage = errors.New("invalid command usage")

// Check runs vs over args in order. Every argument must be consumed.
func Check(args []string, vs ...Validator) error {
	remaining := args
	for _, v := range vs {
		consumed := v(remaining)
		if consumed < 0 {
			return ErrInvalidUsage
		}
		remaining = remaining[consumed:]
	}

	if len(remaining) > 0 {
		return ErrInvalidUsage
	}
	return nil
}

// Validate can be used as a command's Before function to validate the arguments
// to the command.
func Validate(vs ...Validator) cli.BeforeFunc {
	return func(context *cli.Context) error {
		return Check(context.Args(), vs...)
	}
}
