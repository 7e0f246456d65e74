// Package middleware provides the HTTP middleware applied to every API route.
package middleware
