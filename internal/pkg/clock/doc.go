// Package clock provides a tiny time abstraction.
//
// Code that computes delays or stamps messages depends on Clocker instead of
// calling time.Now() directly, so tests can pin the current time.
package clock
