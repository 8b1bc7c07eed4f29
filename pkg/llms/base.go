package llms

import (
	"net/http"
	"time"
)

// EndpointConfig describes an HTTP backend.
type EndpointConfig struct {
	BaseURL    string
	Path       string
	Headers    map[string]string
	TimeoutSec int
}

// BaseLLM carries what every HTTP-backed client needs.
type BaseLLM struct {
	provider   string
	modelID    string
	endpoint   *EndpointConfig
	httpClient *http.Client
}

// NewBaseLLM creates a BaseLLM; a zero timeout means no client timeout.
func NewBaseLLM(provider, modelID string, endpoint *EndpointConfig) *BaseLLM {
	client := &http.Client{}
	if endpoint != nil && endpoint.TimeoutSec > 0 {
		client.Timeout = time.Duration(endpoint.TimeoutSec) * time.Second
	}
	return &BaseLLM{
		provider:   provider,
		modelID:    modelID,
		endpoint:   endpoint,
		httpClient: client,
	}
}

func (b *BaseLLM) ProviderName() string { return b.provider }

func (b *BaseLLM) ModelID() string { return b.modelID }

func (b *BaseLLM) GetEndpointConfig() *EndpointConfig { return b.endpoint }

func (b *BaseLLM) GetHTTPClient() *http.Client { return b.httpClient }
