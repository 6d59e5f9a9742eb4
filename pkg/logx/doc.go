// Package logx wraps zerolog with a small, stable logging API.
//
// Components receive a Logger (usually derived via With for a fixed "comp"
// field); the Service owns the sinks and can re-apply level/output changes
// at runtime without invalidating previously handed-out loggers.
package logx
