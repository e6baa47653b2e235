package config

import "time"

const (
	// DefaultFileName is the configuration document searched for when no
	// --config flag is given.
	DefaultFileName = "conductor.yml"

	// DefaultProjectName is used when the document does not name the stack.
	DefaultProjectName = "Unnamed Project"

	// DefaultColor is applied to components that do not pick a color.
	DefaultColor = "yellow"

	// DefaultGracePeriod is the time a component gets between SIGTERM and SIGKILL.
	DefaultGracePeriod = 5 * time.Second
)

// Colors lists the color names a component may use.
var Colors = []string{"blue", "green", "yellow", "purple", "white", "red", "cyan"}

// DefaultProject returns the base layer every document is merged onto.
func DefaultProject() Project {
	return Project{
		Name:        DefaultProjectName,
		StopOn:      StopOnAny,
		GracePeriod: DefaultGracePeriod,
	}
}
