package recorder

import (
	"encoding/json"
	"errors"

	"github.com/carverauto/tagradar/pkg/config"
	"github.com/carverauto/tagradar/pkg/logger"
	"github.com/carverauto/tagradar/pkg/models"
	"github.com/carverauto/tagradar/pkg/natsutil"
)

var (
	ErrMissingNATSURL        = errors.New("nats_url is required")
	ErrMissingDatabaseConfig = errors.New("database host and database name are required")
	ErrInvalidJSON           = errors.New("failed to unmarshal JSON configuration")
)

const (
	defaultConsumerName  = "tagradar-recorder"
	defaultFilterSubject = "tagradar.sightings.>"
	defaultTable         = "tag_sightings"
)

// Config holds configuration for the sighting recorder consumer.
type Config struct {
	NATSURL      string                 `json:"nats_url"`
	Domain       string                 `json:"domain,omitempty"`
	StreamName   string                 `json:"stream_name"`
	ConsumerName string                 `json:"consumer_name"`
	Subject      string                 `json:"subject"`
	Table        string                 `json:"table"`
	Security     *models.SecurityConfig `json:"security,omitempty"`
	Database     models.Database        `json:"database"`
	Logging      *logger.Config         `json:"logging,omitempty"`
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

	if c.Security != nil && c.Security.CertDir != "" {
		config.NormalizeTLSPaths(&c.Security.TLS, c.Security.CertDir)
	}

	if c.Database.TLS != nil && c.Database.CertDir != "" {
		config.NormalizeTLSPaths(c.Database.TLS, c.Database.CertDir)
	}

	return nil
}

// Validate checks required fields and fills stream defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.NATSURL == "" {
		errs = append(errs, ErrMissingNATSURL)
	}

	if c.StreamName == "" {
		c.StreamName = natsutil.DefaultStreamName
	}

	if c.ConsumerName == "" {
		c.ConsumerName = defaultConsumerName
	}

	if c.Subject == "" {
		c.Subject = defaultFilterSubject
	}

	if c.Table == "" {
		c.Table = defaultTable
	}

	if c.Database.Host == "" || c.Database.Database == "" {
		errs = append(errs, ErrMissingDatabaseConfig)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
