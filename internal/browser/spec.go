package browser

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"browserstealth/internal/profile"
	"browserstealth/internal/serviceworker"
)

// SessionSpec describes the session a Builder assembles.
type SessionSpec struct {
	// ExecutionID only correlates log lines.
	ExecutionID       string                  `yaml:"execution_id"`
	BaseURL           string                  `yaml:"base_url"`
	Viewport          Viewport                `yaml:"viewport"`
	DeviceScaleFactor float64                 `yaml:"device_scale_factor"`
	Locale            string                  `yaml:"locale"`
	Timezone          string                  `yaml:"timezone"`
	Geolocation       *Geolocation            `yaml:"geolocation"`
	Permissions       []string                `yaml:"permissions"`
	StorageStatePath  string                  `yaml:"storage_state"`
	ExtraHeaders      map[string]string       `yaml:"extra_headers"`
	Proxy             *Proxy                  `yaml:"proxy"`
	Profile           *profile.BrowserProfile `yaml:"profile"`
	ServiceWorkers    serviceworker.Control   `yaml:"service_workers"`

	// StorageState takes precedence over StorageStatePath.
	StorageState *StorageState `yaml:"-"`
}

func LoadSessionSpec(path string) (*SessionSpec, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var spec SessionSpec
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("failed to parse session spec %s: %w", path, err)
	}
	return &spec, nil
}

func (s SessionSpec) storageState() (*StorageState, error) {
	if s.StorageState != nil {
		return s.StorageState, nil
	}
	if s.StorageStatePath == "" {
		return nil, nil
	}
	return LoadStorageState(s.StorageStatePath)
}
