package origin

import "fmt"

// ConfigurationError reports a module origin that cannot be resolved from
// either the server overrides or the compiled-in table. It is fatal at startup.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("origin configuration: missing %s", e.Key)
	}
	return fmt.Sprintf("origin configuration: %s: %s", e.Key, e.Reason)
}
