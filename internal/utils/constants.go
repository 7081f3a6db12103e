package utils

// Configuration file discovery constants.
const (
	// ConfigFileName is the name of the settings file looked up in the
	// working directory and in the global configuration directory.
	ConfigFileName = ".funcanalyzer.yaml"
	// GlobalConfigDirectoryName is the per-user configuration directory
	// under the home directory.
	GlobalConfigDirectoryName = ".funcanalyzer"
)

// LoggerInitializationFailedMessageFormat reports a logger construction failure.
const LoggerInitializationFailedMessageFormat = "failed to initialize logger: %w"

// ApplicationExecutionFailedMessage prefixes fatal command errors.
const ApplicationExecutionFailedMessage = "application execution failed"
