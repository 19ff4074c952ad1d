package config

// Flags are the command line overrides accepted by `cbserver serve`. Non-zero
// values win over the config file and the environment.
type Flags struct {
	Config   string
	LogLevel string
	APIPort  int
}
