package led

import (
	"errors"
	"fmt"
)

// ErrUnknownLED is returned when a request names an LED the registry does not hold.
var ErrUnknownLED = errors.New("led: unknown LED")

// ConfigurationError reports the entry that stopped registry construction.
type ConfigurationError struct {
	Index int // position in the configuration list
	Name  string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("led %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
