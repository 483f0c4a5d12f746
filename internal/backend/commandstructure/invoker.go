package commandstructure

import (
	"fmt"
	"log/slog"
	"time"
)

// CommandInvoker runs a fixed sequence of commands over image data
type CommandInvoker struct {
	commands []Command
}

func NewCommandInvoker(commands []Command) *CommandInvoker {
	return &CommandInvoker{
		commands: commands,
	}
}

// NewCommandInvokerFromConfig builds every configured command up front so that
// configuration errors surface at start-up rather than on the first upload
func NewCommandInvokerFromConfig(registry *CommandRegistry, configs []CommandConfig) (*CommandInvoker, error) {
	commands := make([]Command, 0, len(configs))
	for i, config := range configs {
		command, err := registry.Create(config.Name, config.Params)
		if err != nil {
			return nil, fmt.Errorf("failed to create command at index %d (%s): %w", i, config.Name, err)
		}
		commands = append(commands, command)
	}
	return NewCommandInvoker(commands), nil
}

// Names lists the commands in execution order
func (i *CommandInvoker) Names() []string {
	names := make([]string, 0, len(i.commands))
	for _, c := range i.commands {
		names = append(names, c.Name())
	}
	return names
}

// Execute applies all commands in sequence to the image data
func (i *CommandInvoker) Execute(imageData []byte) ([]byte, error) {
	start := time.Now()

	if len(i.commands) == 0 {
		slog.Debug("image pipeline: no commands to execute, returning input")
		return imageData, nil
	}

	currentData := imageData
	for idx, command := range i.commands {
		commandStart := time.Now()

		processedData, err := command.Execute(currentData)
		if err != nil {
			slog.Error("image pipeline: command failed",
				"index", idx,
				"command_name", command.Name(),
				"error", err,
				"input_size_bytes", len(currentData))
			return nil, fmt.Errorf("command %s (index %d) failed: %w", command.Name(), idx, err)
		}

		slog.Debug("image pipeline: command completed",
			"index", idx,
			"command_name", command.Name(),
			"duration_ms", time.Since(commandStart).Milliseconds(),
			"input_size_bytes", len(currentData),
			"output_size_bytes", len(processedData))

		currentData = processedData
	}

	slog.Debug("image pipeline: completed",
		"total_duration_ms", time.Since(start).Milliseconds(),
		"command_count", len(i.commands),
		"final_size_bytes", len(currentData))

	return currentData, nil
}
