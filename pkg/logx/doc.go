// Package logx is newsrelay's structured logging on top of zerolog.
//
// Components derive their logger with With(logx.String("comp", ...)). A
// Service owns the sinks (stdout as console text or JSON lines, and an
// optional JSON file) and can swap them on config reload; derived loggers
// follow. Configured secrets are scrubbed from every sink.
package logx
