package sink

import "github.com/carverauto/tagradar/pkg/models"

// DeviceInfo holds the Home Assistant device registry fields shared by
// the discovery payloads announcing one beacon.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

// SensorConfig is the JSON payload for an HA MQTT sensor discovery
// message. It is published (retained) to the discovery topic when a
// beacon is first seen and again on every broker (re-)connect.
type SensorConfig struct {
	Name                string     `json:"name"`
	ObjectID            string     `json:"object_id,omitempty"`
	HasEntityName       bool       `json:"has_entity_name,omitempty"`
	UniqueID            string     `json:"unique_id"`
	StateTopic          string     `json:"state_topic"`
	AvailabilityTopic   string     `json:"availability_topic"`
	JsonAttributesTopic string     `json:"json_attributes_topic,omitempty"`
	Device              DeviceInfo `json:"device"`
	Icon                string     `json:"icon,omitempty"`
	UnitOfMeasurement   string     `json:"unit_of_measurement,omitempty"`
	DeviceClass         string     `json:"device_class,omitempty"`
	StateClass          string     `json:"state_class,omitempty"`
	ValueTemplate       string     `json:"value_template,omitempty"`
	EntityCategory      string     `json:"entity_category,omitempty"`
}

// TagState is the document published to a tag's state topic. The fixed
// fields come straight from the gateway record; the rest is best-effort
// enrichment from the advertisement decoder.
type TagState struct {
	RSSI         int             `json:"rssi"`
	Timestamp    int64           `json:"timestamp"`
	AgeSeconds   *int64          `json:"age_s,omitempty"`
	Data         models.HexBytes `json:"data"`
	GatewayMAC   string          `json:"gw_mac"`
	Coordinates  string          `json:"coordinates,omitempty"`
	LocalName    string          `json:"local_name,omitempty"`
	TxPower      *int8           `json:"tx_power,omitempty"`
	CompanyID    string          `json:"company_id,omitempty"`
	ServiceUUIDs []string        `json:"service_uuids,omitempty"`
}
