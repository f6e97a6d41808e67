package errors

import (
	"fmt"
	"strings"

	"github.com/hashicorp/errwrap"
	"github.com/mitchellh/go-wordwrap"
)

// Pretty renders err for terminal output. The message is wrapped at 80 columns
// and every recovered cause is listed underneath.
func Pretty(err error) string {
	if err == nil {
		return ""
	}

	sb := strings.Builder{}
	sb.WriteString("Error:\n")

	for _, l := range strings.Split(wordwrap.WrapString(err.Error(), 78), "\n") {
		sb.WriteString("  " + l + "\n")
	}

	var e *Error
	if !As(err, &e) || len(e.Causes) == 0 {
		return sb.String()
	}

	sb.WriteString("\n  Caused by:\n")

	for i, c := range e.Causes {
		lines := strings.Split(wordwrap.WrapString(c.Error(), 70), "\n")
		sb.WriteString(fmt.Sprintf("  %3d | %s\n", i+1, lines[0]))

		for _, l := range lines[1:] {
			sb.WriteString(fmt.Sprintf("      : %s\n", l))
		}
	}

	return sb.String()
}

// Contains reports whether an error with exactly the message msg is part of
// the chain of err, including recovered causes.
func Contains(err error, msg string) bool {
	return errwrap.Contains(err, msg)
}
