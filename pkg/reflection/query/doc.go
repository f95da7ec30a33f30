// Package query validates reflection queries and fills their defaults.
package query
