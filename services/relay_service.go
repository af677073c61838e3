package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/itish2003/prompt-relay/chatgpt"
	"github.com/itish2003/prompt-relay/logging"
	"github.com/itish2003/prompt-relay/models"
)

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInvalidCredential   = errors.New("invalid credential")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Sender sends one prompt upstream and returns the reply. *chatgpt.Client implements it.
type Sender interface {
	SendMessage(ctx context.Context, prompt string) (*chatgpt.Reply, error)
}

// ClientFactory returns a Sender bound to a single caller's access token.
type ClientFactory func(accessToken string) Sender

// ChatGPTClients adapts a chatgpt.Factory to a ClientFactory.
func ChatGPTClients(f *chatgpt.Factory) ClientFactory {
	return func(accessToken string) Sender {
		return f.New(accessToken)
	}
}

// RelayService interface defines the relay operation behind POST /query
type RelayService interface {
	Relay(c context.Context, req models.QueryRequest) (*models.QueryResponse, error)
}

// relayServiceImpl holds no per-request state; every call builds its own upstream client.
type relayServiceImpl struct {
	newClient ClientFactory
}

// NewRelayService creates a new relay service instance
func NewRelayService(newClient ClientFactory) RelayService {
	return &relayServiceImpl{
		newClient: newClient,
	}
}

// Relay implements RelayService
func (r *relayServiceImpl) Relay(c context.Context, req models.QueryRequest) (*models.QueryResponse, error) {
	log := logging.FromContext(c)

	if req.Prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	if req.AccessToken == "" {
		return nil, fmt.Errorf("%w: accessToken is required", ErrInvalidRequest)
	}

	log.Infof("Prompt: %s", req.Prompt)

	client := r.newClient(req.AccessToken)
	reply, err := client.SendMessage(c, req.Prompt)
	if err != nil {
		return nil, classifyUpstreamError(err)
	}

	log.Infof("Response: %s", reply.Text)
	return &models.QueryResponse{Message: reply.Text}, nil
}

// classifyUpstreamError maps a client failure onto the relay error taxonomy.
func classifyUpstreamError(err error) error {
	if errors.Is(err, chatgpt.ErrMissingAccessToken) {
		return fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	var apiErr *chatgpt.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %w", ErrInvalidCredential, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
}
