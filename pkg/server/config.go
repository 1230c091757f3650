package server

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the listener configuration.
type Config struct {
	Addr     string `validate:"required,hostname_port"`
	MemberID string `validate:"required"`
	// ReadTimeout is the socket timeout a connection starts with; calls may
	// override it for their own duration.
	ReadTimeout     time.Duration `validate:"gte=0"`
	ShutdownTimeout time.Duration `validate:"gte=0"`
	MaxConnections  int           `validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c Config) Validate() error {
	err := validate.Struct(c)
	if err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	return nil
}
