package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Resolver resolves secret://name[?version=N&project=P] references against Google Secret
// Manager. Path separators in the name become dashes, so secret://stripe/api reads the
// "stripe-api" secret. Resolved values are cached for the life of the process.
type Resolver struct {
	client    secretManagerClient
	projectID string
	logger    *zap.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewResolver dials Secret Manager for the given default project.
func NewResolver(ctx context.Context, projectID string, logger *zap.Logger, opts ...option.ClientOption) (*Resolver, error) {
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("secrets: create client: %w", err)
	}
	return newResolver(client, projectID, logger), nil
}

func newResolver(client secretManagerClient, projectID string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		client:    client,
		projectID: strings.TrimSpace(projectID),
		logger:    logger,
		cache:     make(map[string]string),
	}
}

// ResolveSecret implements config.SecretResolver.
func (r *Resolver) ResolveSecret(ctx context.Context, ref string) (string, error) {
	name, err := r.resourceName(ref)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	value, ok := r.cache[name]
	r.mu.Unlock()
	if ok {
		return value, nil
	}

	resp, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("secrets: access %s: %w", name, err)
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secrets: empty payload for %s", name)
	}
	value = string(resp.GetPayload().GetData())
	r.logger.Debug("secret resolved", zap.String("secret", name))

	r.mu.Lock()
	r.cache[name] = value
	r.mu.Unlock()
	return value, nil
}

// Close releases the Secret Manager connection.
func (r *Resolver) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *Resolver) resourceName(ref string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return "", fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	secret := strings.ReplaceAll(strings.Trim(u.Host+u.Path, "/"), "/", "-")
	if secret == "" {
		return "", fmt.Errorf("secrets: missing secret name in %q", ref)
	}

	query := u.Query()
	project := strings.TrimSpace(query.Get("project"))
	if project == "" {
		project = r.projectID
	}
	if project == "" {
		return "", errors.New("secrets: project id is required")
	}
	version := strings.TrimSpace(query.Get("version"))
	if version == "" {
		version = "latest"
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, secret, version), nil
}
