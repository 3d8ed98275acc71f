// Package config provides yard simulation configuration - NO infrastructure
// URLs.
//
// This module contains ONLY configuration relevant to the simulation's
// orchestration: yard topology, protocol timeouts, and workload-generation
// tuning. Transport settings (endpoint domain, OTLP collector) are CLI
// flags in cmd/yardctl, not here.
package config

import (
	"fmt"
	"sync"
)

// Config holds yard simulation configuration.
//
// Fields are grouped by concern: topology, then protocol timeouts, then
// workload generation, then logging.
type Config struct {
	// Yard Topology
	SlotCount     int `json:"slot_count" yaml:"slot_count"`
	MaxSlotHeight int `json:"max_slot_height" yaml:"max_slot_height"`

	// Protocol Timeouts (seconds). Validated and carried here only: the
	// behavior runners and agents do not read them and apply no deadline.
	AwaitResponsesTimeout int `json:"await_responses_timeout" yaml:"await_responses_timeout"` // Contract-Net: CFP fan-out to all PROPOSE/REFUSE in
	AwaitResultsTimeout   int `json:"await_results_timeout" yaml:"await_results_timeout"`       // Contract-Net/Request: decision to all result notifications in
	DFQueryTimeout        int `json:"df_query_timeout" yaml:"df_query_timeout"`                 // directory facilitator search round trip

	// Workload Generation
	ContainerCount        int `json:"container_count" yaml:"container_count"`
	MaxContainersInBatch  int `json:"max_containers_in_batch" yaml:"max_containers_in_batch"`
	MinArrivalDeltaSec    int `json:"min_arrival_delta_sec" yaml:"min_arrival_delta_sec"`
	MaxArrivalDeltaSec    int `json:"max_arrival_delta_sec" yaml:"max_arrival_delta_sec"`
	MinDepartureDeltaSec  int `json:"min_departure_delta_sec" yaml:"min_departure_delta_sec"`
	MaxDepartureDeltaSec  int `json:"max_departure_delta_sec" yaml:"max_departure_delta_sec"`
	DepartureTimeAccuracy int `json:"departure_time_accuracy_sec" yaml:"departure_time_accuracy_sec"` // seconds past the last scheduled departure at which cmd/yardctl's truck arrives; departure times sent to slots carry no jitter

	// Logging
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// DefaultConfig returns a Config with default values, mirroring the knobs
// original_source's TestEnvironment.prepare_test exposes for workload
// generation.
func DefaultConfig() *Config {
	return &Config{
		SlotCount:     10,
		MaxSlotHeight: 4,

		AwaitResponsesTimeout: 5,
		AwaitResultsTimeout:   5,
		DFQueryTimeout:        3,

		ContainerCount:        50,
		MaxContainersInBatch:  5,
		MinArrivalDeltaSec:    1,
		MaxArrivalDeltaSec:    10,
		MinDepartureDeltaSec:  30,
		MaxDepartureDeltaSec:  300,
		DepartureTimeAccuracy: 15,

		LogLevel: "INFO",
	}
}

// Validate checks that the configuration describes a usable yard and
// workload. It does not mutate c.
func (c *Config) Validate() error {
	if c.SlotCount <= 0 {
		return fmt.Errorf("slot_count must be positive, got %d", c.SlotCount)
	}
	if c.MaxSlotHeight <= 0 {
		return fmt.Errorf("max_slot_height must be positive, got %d", c.MaxSlotHeight)
	}
	if c.AwaitResponsesTimeout <= 0 {
		return fmt.Errorf("await_responses_timeout must be positive, got %d", c.AwaitResponsesTimeout)
	}
	if c.AwaitResultsTimeout <= 0 {
		return fmt.Errorf("await_results_timeout must be positive, got %d", c.AwaitResultsTimeout)
	}
	if c.DFQueryTimeout <= 0 {
		return fmt.Errorf("df_query_timeout must be positive, got %d", c.DFQueryTimeout)
	}
	if c.ContainerCount < 0 {
		return fmt.Errorf("container_count must not be negative, got %d", c.ContainerCount)
	}
	if c.MaxContainersInBatch <= 0 {
		return fmt.Errorf("max_containers_in_batch must be positive, got %d", c.MaxContainersInBatch)
	}
	if c.MinArrivalDeltaSec > c.MaxArrivalDeltaSec {
		return fmt.Errorf("min_arrival_delta_sec (%d) must not exceed max_arrival_delta_sec (%d)", c.MinArrivalDeltaSec, c.MaxArrivalDeltaSec)
	}
	if c.MinDepartureDeltaSec > c.MaxDepartureDeltaSec {
		return fmt.Errorf("min_departure_delta_sec (%d) must not exceed max_departure_delta_sec (%d)", c.MinDepartureDeltaSec, c.MaxDepartureDeltaSec)
	}
	if c.DepartureTimeAccuracy < 0 {
		return fmt.Errorf("departure_time_accuracy_sec must not be negative, got %d", c.DepartureTimeAccuracy)
	}
	return nil
}

// FromMap creates a Config from a map, starting from defaults. Unknown keys
// are ignored.
func FromMap(fields map[string]any) *Config {
	c := DefaultConfig()

	setInt := func(key string, dst *int) {
		if v, ok := fields[key].(int); ok {
			*dst = v
		} else if v, ok := fields[key].(float64); ok {
			*dst = int(v)
		}
	}

	setInt("slot_count", &c.SlotCount)
	setInt("max_slot_height", &c.MaxSlotHeight)
	setInt("await_responses_timeout", &c.AwaitResponsesTimeout)
	setInt("await_results_timeout", &c.AwaitResultsTimeout)
	setInt("df_query_timeout", &c.DFQueryTimeout)
	setInt("container_count", &c.ContainerCount)
	setInt("max_containers_in_batch", &c.MaxContainersInBatch)
	setInt("min_arrival_delta_sec", &c.MinArrivalDeltaSec)
	setInt("max_arrival_delta_sec", &c.MaxArrivalDeltaSec)
	setInt("min_departure_delta_sec", &c.MinDepartureDeltaSec)
	setInt("max_departure_delta_sec", &c.MaxDepartureDeltaSec)
	setInt("departure_time_accuracy_sec", &c.DepartureTimeAccuracy)

	if v, ok := fields["log_level"].(string); ok {
		c.LogLevel = v
	}

	return c
}

// ToMap converts a Config to a map, inverse of FromMap.
func (c *Config) ToMap() map[string]any {
	return map[string]any{
		"slot_count":                  c.SlotCount,
		"max_slot_height":             c.MaxSlotHeight,
		"await_responses_timeout":     c.AwaitResponsesTimeout,
		"await_results_timeout":       c.AwaitResultsTimeout,
		"df_query_timeout":            c.DFQueryTimeout,
		"container_count":             c.ContainerCount,
		"max_containers_in_batch":     c.MaxContainersInBatch,
		"min_arrival_delta_sec":       c.MinArrivalDeltaSec,
		"max_arrival_delta_sec":       c.MaxArrivalDeltaSec,
		"min_departure_delta_sec":     c.MinDepartureDeltaSec,
		"max_departure_delta_sec":     c.MaxDepartureDeltaSec,
		"departure_time_accuracy_sec": c.DepartureTimeAccuracy,
		"log_level":                   c.LogLevel,
	}
}

// =============================================================================
// GLOBAL CONFIG (set by cmd/yardctl at startup)
// =============================================================================

var (
	globalConfig *Config
	configMu     sync.RWMutex
)

// Get returns the process-wide configuration, or defaults if none was set.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()

	if globalConfig == nil {
		return DefaultConfig()
	}
	return globalConfig
}

// Set installs the process-wide configuration.
func Set(c *Config) {
	configMu.Lock()
	defer configMu.Unlock()

	globalConfig = c
}

// Reset clears the process-wide configuration (useful for testing). After
// Reset, Get returns defaults.
func Reset() {
	configMu.Lock()
	defer configMu.Unlock()

	globalConfig = nil
}
