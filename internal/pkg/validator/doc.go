// Package validator validates request structs and single values with
// go-playground/validator v10 and English messages keyed by JSON field name.
package validator
