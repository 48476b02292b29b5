// Package utils exposes reusable helpers consumed by the ego CLI shell and
// the output channel.
//
// It houses the ConfigurationLoader and LoggerFactory abstractions that
// integrate Viper, environment variables, and zap logging, the
// CommandContextAccessor that carries resolved configuration values into
// module dispatch, and the FlushingWriter that keeps verbosity-gated output
// visible on buffered streams.
package utils
