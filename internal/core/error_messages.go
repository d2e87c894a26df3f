// # Error Codes Reference
//
// Failures are mapped to short coded messages so an operator can quote the
// code when reporting a problem. Known sentinel errors are matched first
// with errors.Is; database failures are matched by message pattern since
// they arrive from two different drivers.
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Source not seekable: resume requires a seekable file
//	         Action: Read from a regular file instead of a pipe
//	CFG002 - Interval order: skip intervals overlap or are out of order
//	         Action: Reset the journal entry for this source
//	CFG003 - Encoding: the codec cannot represent line terminators
//	         Action: Choose an ASCII compatible encoding
//
// # Scanner Errors (SCN001-SCN099)
//
//	SCN001 - Position mismatch: the file changed or moved under the reader
//	         Action: Make sure nothing writes to the file while it is loaded
//	SCN002 - No progress: the source keeps returning empty reads
//	         Action: Check the file system the source lives on
//
// # Record Errors (REC001-REC099)
//
//	REC001 - Malformed row: a data row is not "address mt size"
//	         Action: Inspect the reported line in the source
//	REC002 - Header not found: the listing header never appeared
//	         Action: Check the header label setting against the file
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Connection refused: unable to reach the database
//	        Patterns: "connection refused", "no such host"
//	DB002 - Timeout: the database did not answer in time
//	        Patterns: "timeout", "deadline exceeded"
//	DB003 - Duplicate row: an address was inserted twice
//	        Patterns: "duplicate key", "unique constraint"
//	DB004 - Missing table: journal or data table does not exist
//	        Patterns: "does not exist", "no such table"
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Cancelled: the run was interrupted
//	         Action: Run again to resume from the last commit
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: check the log for the underlying failure
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/heapload/internal/linescan"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorSentinel maps a sentinel error to its user message.
type errorSentinel struct {
	target error
	msg    UserMessage
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorSentinels = []errorSentinel{
	{
		target: linescan.ErrNotSeekable,
		msg: UserMessage{
			Message: "The source cannot be resumed because it is not seekable",
			Action:  "Read from a regular file instead of a pipe",
			Code:    "CFG001",
		},
	},
	{
		target: linescan.ErrIntervalOrder,
		msg: UserMessage{
			Message: "The stored resume position is inconsistent",
			Action:  "Reset the journal entry for this source",
			Code:    "CFG002",
		},
	},
	{
		target: linescan.ErrEncoding,
		msg: UserMessage{
			Message: "The configured encoding cannot represent line terminators",
			Action:  "Choose an ASCII compatible encoding",
			Code:    "CFG003",
		},
	},
	{
		target: linescan.ErrPositionMismatch,
		msg: UserMessage{
			Message: "The file position diverged while reading",
			Action:  "Make sure nothing writes to the file while it is loaded",
			Code:    "SCN001",
		},
	},
	{
		target: io.ErrNoProgress,
		msg: UserMessage{
			Message: "The source stopped returning data",
			Action:  "Check the file system the source lives on",
			Code:    "SCN002",
		},
	},
	{
		target: ErrMalformedRecord,
		msg: UserMessage{
			Message: "A data row could not be parsed",
			Action:  "Inspect the reported line in the source",
			Code:    "REC001",
		},
	},
	{
		target: ErrHeaderNotFound,
		msg: UserMessage{
			Message: "The listing header was not found",
			Action:  "Check the header label setting against the file",
			Code:    "REC002",
		},
	},
	{
		target: context.Canceled,
		msg: UserMessage{
			Message: "The run was interrupted",
			Action:  "Run again to resume from the last commit",
			Code:    "RUN001",
		},
	},
}

// errorPatterns are matched case-insensitively with strings.Contains.
// The first match wins.
var errorPatterns = []errorPattern{
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Check DATABASE_URL and that the server is running",
			Code:    "DB001",
		},
	},
	{
		pattern: "no such host",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Check the host name in DATABASE_URL",
			Code:    "DB001",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The database did not answer in time",
			Action:  "Run again to resume from the last commit",
			Code:    "DB002",
		},
	},
	{
		pattern: "deadline exceeded",
		msg: UserMessage{
			Message: "The database did not answer in time",
			Action:  "Run again to resume from the last commit",
			Code:    "DB002",
		},
	},
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "An object address was inserted twice",
			Action:  "Reset the table and load the file again",
			Code:    "DB003",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "An object address was inserted twice",
			Action:  "Reset the table and load the file again",
			Code:    "DB003",
		},
	},
	{
		pattern: "does not exist",
		msg: UserMessage{
			Message: "A required table is missing",
			Action:  "Run again so the tables are created",
			Code:    "DB004",
		},
	},
	{
		pattern: "no such table",
		msg: UserMessage{
			Message: "A required table is missing",
			Action:  "Run again so the tables are created",
			Code:    "DB004",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the log for the underlying failure",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Sentinels are checked first, then message patterns. If nothing matches,
// the ERR000 fallback is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, es := range errorSentinels {
		if errors.Is(err, es.target) {
			return es.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
