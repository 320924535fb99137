// Package task defines the background task record and the state machine that
// governs it.
//
// A Task moves from not_started through queued (optional) and running to
// exactly one terminal state: success, partial_success, or failed. Every
// mutation is expressed as an operation (Op) checked against a single
// transition table before its effect is applied, so illegal calls surface as
// IllegalTransitionError values instead of silently corrupting state.
//
// The methods in this package are pure: they mutate the in-memory record and
// never touch storage. Callers that need atomic read-modify-write semantics
// go through internal/lifecycle, which runs these effects under a row lock.
package task
