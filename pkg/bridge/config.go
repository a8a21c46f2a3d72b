package bridge

import (
	"encoding/json"
	"errors"

	"github.com/carverauto/tagradar/pkg/config"
	"github.com/carverauto/tagradar/pkg/gateway"
	"github.com/carverauto/tagradar/pkg/logger"
	"github.com/carverauto/tagradar/pkg/models"
)

var (
	ErrInvalidJSON       = errors.New("failed to unmarshal JSON configuration")
	ErrEventsRequireNATS = errors.New("events sink is enabled but no nats block is configured")
)

// Config is the bridge service configuration: one gateway, the poll
// interval, and the sinks fed by the poll loop.
type Config struct {
	Gateway      gateway.Config       `json:"gateway"`
	PollInterval models.Duration      `json:"poll_interval,omitempty"`
	NATS         *models.NATSConfig   `json:"nats,omitempty"`
	Events       *models.EventsConfig `json:"events,omitempty"`
	MQTT         *models.MQTTConfig   `json:"mqtt,omitempty"`
	Logging      *logger.Config       `json:"logging,omitempty"`
}

// UnmarshalJSON ensures TLS paths are normalized.
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config

	var alias struct{ Alias }

	alias.Alias = Alias{}

	if err := json.Unmarshal(data, &alias); err != nil {
		return errors.Join(ErrInvalidJSON, err)
	}

	*c = Config(alias.Alias)

	if c.NATS != nil && c.NATS.Security != nil && c.NATS.Security.CertDir != "" {
		config.NormalizeTLSPaths(&c.NATS.Security.TLS, c.NATS.Security.CertDir)
	}

	return nil
}

// Validate checks the gateway block and fills sink defaults.
func (c *Config) Validate() error {
	if err := c.Gateway.Validate(); err != nil {
		return err
	}

	if c.NATS != nil {
		if err := c.NATS.Validate(); err != nil {
			return err
		}
	}

	if c.Events != nil {
		if c.Events.Enabled && c.NATS == nil {
			return ErrEventsRequireNATS
		}

		if err := c.Events.Validate(); err != nil {
			return err
		}
	}

	if c.MQTT != nil {
		if err := c.MQTT.Validate(); err != nil {
			return err
		}
	}

	return nil
}
