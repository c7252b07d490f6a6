package serial

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateConfig validates serial line parameters. Every failure wraps
// ErrInvalidConfiguration.
func ValidateConfig(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	// Report the first offending field, like a hand-written check would.
	fe := verrs[0]
	switch fe.Field() {
	case "BaudRate":
		return fmt.Errorf("%w: baud rate must be positive, got: %d", ErrInvalidConfiguration, cfg.BaudRate)
	case "DataBits":
		return fmt.Errorf("%w: data bits must be 5-8, got: %d", ErrInvalidConfiguration, cfg.DataBits)
	case "Parity":
		return fmt.Errorf("%w: invalid parity value: %d", ErrInvalidConfiguration, int(cfg.Parity))
	case "StopBits":
		return fmt.Errorf("%w: invalid stop bits value: %d", ErrInvalidConfiguration, int(cfg.StopBits))
	case "FlowControl":
		return fmt.Errorf("%w: invalid flow control value: %d", ErrInvalidConfiguration, int(cfg.FlowControl))
	}
	return fmt.Errorf("%w: %s failed %q", ErrInvalidConfiguration, fe.Field(), fe.Tag())
}
