package gateway

import (
	"strings"

	"github.com/carverauto/tagradar/pkg/models"
)

// Config describes how to reach one gateway.
type Config struct {
	// Host is the address of the gateway, with optional port.
	Host string `json:"host"`
	// Token is the optional bearer token. Whitespace-only values are
	// treated as absent.
	Token string `json:"token,omitempty"`
	// Timeout bounds the whole request/response cycle. Zero means no
	// client-side bound; the caller's context still applies.
	Timeout models.Duration `json:"timeout,omitempty"`
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return ErrHostRequired
	}

	return nil
}
