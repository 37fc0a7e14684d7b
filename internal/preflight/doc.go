// Package preflight provides readiness checks for the filesystem paths and
// external services dlq depends on.
//
// The daemon runs RunAll at startup and logs every failed check; the CLI
// "dlq status" command renders the same results. Checks never abort startup:
// a missing category directory only affects transfers in that category.
package preflight
