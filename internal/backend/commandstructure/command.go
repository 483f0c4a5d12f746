package commandstructure

// Command transforms PNG image bytes. Commands are stateless once built and may be
// shared between requests.
type Command interface {
	Name() string
	Execute(imageData []byte) ([]byte, error)
}

// CommandFactory creates a command from configuration parameters
type CommandFactory func(params map[string]any) (Command, error)

// CommandConfig names a registered command and carries its parameters inline
type CommandConfig struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:",inline"`
}
