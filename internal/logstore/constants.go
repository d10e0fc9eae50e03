package logstore

// PrimaryFileName is the append-only data file inside a log directory.
const PrimaryFileName = "log"

// Log file defaults
const (
	DefaultAppDir        = ".logstore"
	DefaultLogDir        = "logs"
	DefaultLogFileName   = "logstore.log"
	DefaultLogMaxSize    = 100
	DefaultLogMaxBackups = 3
	DefaultLogLevel      = "info"
)
