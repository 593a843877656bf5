package settings

import "sync"

// Arguments holds the options recognized by the malhtool command-line
// front end. It is a singleton, mirroring how the wider daemon this tool
// was lifted from shares a single parsed options object across packages.
type Arguments struct {
	DataDir string // Base directory relations are resolved relative to
	LogDir  string // Directory to write log files (default: stdout)

	Debug   bool // Enable verbose, human-readable logging
	Verbose bool // Strongly verbose logging

	PageSize int // Page size in bytes used to create and to open relations

	Version string
}

var (
	instance *Arguments
	once     sync.Once
	mu       sync.RWMutex
)

// GetSettings returns the global settings instance.
func GetSettings() *Arguments {
	once.Do(func() {
		instance = &Arguments{
			DataDir:  "./data",
			LogDir:   "",
			Debug:    false,
			Verbose:  false,
			PageSize: 8192,
			Version:  "0.1.0",
		}
	})
	return instance
}

// UpdateSettings updates the global settings with new values.
func UpdateSettings(args Arguments) {
	mu.Lock()
	defer mu.Unlock()

	if args.DataDir != "" {
		instance.DataDir = args.DataDir
	}
	if args.LogDir != "" {
		instance.LogDir = args.LogDir
	}
	if args.PageSize != 0 {
		instance.PageSize = args.PageSize
	}
	if args.Version != "" {
		instance.Version = args.Version
	}

	// Boolean flags need special handling since false is a valid value.
	instance.Debug = args.Debug
	instance.Verbose = args.Verbose
}
