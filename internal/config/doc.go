// Package config resolves osss-compose settings from flags, the process
// environment, a dotenv file and defaults, in that order of precedence.
// It also owns the small persisted state file holding DEFAULT_TAIL.
package config
