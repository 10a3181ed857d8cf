package errs

import "github.com/m-mizutani/goerr/v2"

var (
	// Client errors (4xx)
	TagNotFound     = goerr.NewTag("not_found")    // 404
	TagValidation   = goerr.NewTag("validation")   // 400
	TagUnauthorized = goerr.NewTag("unauthorized") // 401
	TagForbidden    = goerr.NewTag("forbidden")    // 403
	TagConflict     = goerr.NewTag("conflict")     // 409
	TagRateLimit    = goerr.NewTag("rate_limit")   // 429

	// Server errors (5xx)
	TagInternal = goerr.NewTag("internal") // 500
	TagExternal = goerr.NewTag("external") // 502/503
	TagTimeout  = goerr.NewTag("timeout")  // 504
	TagDatabase = goerr.NewTag("database") // 500 (specific to DB errors)

	// State machine errors
	TagInvalidState = goerr.NewTag("invalid_state") // edge not in transition table

	// Remote host errors
	TagUnreachable = goerr.NewTag("unreachable")

	// External service errors
	TagSlackError  = goerr.NewTag("slack_error")
	TagPolicyError = goerr.NewTag("policy_error")
)
