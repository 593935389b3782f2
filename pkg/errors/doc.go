// Package errors defines the failure taxonomy shared by command dispatch,
// extension management and the error classifier, plus the supervisor that
// handles failures nobody else handled.
//
// # Failures
//
// Every failure carries a Kind from a closed set. Kinds are grouped into
// categories and have a default severity and message:
//
//	err := errors.NewBuilder(errors.KindCommandOnCooldown).
//	    WithCommand(&errors.CommandRef{Name: "reset"}).
//	    WithCooldown(errors.BucketUser, 12300*time.Millisecond).
//	    Build()
//
// Wrappers such as KindCommandInvoke keep the original error as their cause.
// Chain walks the cause chain and stops after MaxCauseDepth links, so cyclic
// or very deep chains cannot hang a caller.
//
// # Supervision
//
// The supervisor receives failures the classifier re-raises (unhandled
// errors inside commands and anything unrecognised). It:
//   - logs them with the command, author and server they came from
//   - persists them to SQLite, folding repeats into one row
//   - rate limits operator alerts per kind and command
//   - posts alerts to the configured channel, or an owner's DMs
//
// Resolved failures are pruned on a cron schedule.
package errors
