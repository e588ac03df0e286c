package services

import (
	"errors"
	"fmt"

	"simonair-telemetry-service/config"

	"github.com/go-resty/resty/v2"
)

// Registry talks to the device registry API, an external collaborator that
// resolves device ids to operator-facing metadata. Authentication against it
// is opaque to this service: the api-key header is all we carry.
type Registry struct {
	client *resty.Client
}

var ErrDeviceNotFound = errors.New("device not found")

type RegisteredDevice struct {
	ID           string `json:"id"`
	SerialNumber string `json:"serial_number"`
	Alias        string `json:"alias"`
	Description  string `json:"description"`
}

func NewRegistryClient(conf config.RegistryConfig) *Registry {
	client := resty.New()
	client.SetBaseURL(conf.URL)
	client.SetHeader("api-key", conf.Token)

	return &Registry{client: client}
}

// GetDevice fetches registry metadata for one device id.
func (r *Registry) GetDevice(deviceID string) (*RegisteredDevice, error) {
	var response struct {
		Status string           `json:"status"`
		Data   RegisteredDevice `json:"data"`
	}

	resp, err := r.client.R().SetResult(&response).Get("/devices/" + deviceID)
	if err != nil {
		return nil, fmt.Errorf("error requesting device %s from registry: %w", deviceID, err)
	}

	if resp.StatusCode() == 404 {
		return nil, ErrDeviceNotFound
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("failed to fetch device from registry, status code: %d, body: %s", resp.StatusCode(), string(resp.Body()))
	}

	return &response.Data, nil
}
