package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bucketshare/bucketshare-backend/pkg/config"
	"github.com/bucketshare/bucketshare-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopic           = errors.New("pubsub notification topic is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client publishes lifecycle notifications. Publishers are created once per
// topic and flushed on Close.
type Client struct {
	client    *pubsub.Client
	projectID string
	topic     string

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient connects to Pub/Sub and fails fast when the notification topic is
// missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	psClient, err := pubsub.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:     psClient,
		projectID:  projectID,
		topic:      strings.TrimSpace(cfg.NotificationTopic),
		publishers: map[string]*pubsub.Publisher{},
	}
	if err := c.checkTopic(ctx, c.topic); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	logg.Info(logg.WithField(ctx, "pubsub_topic", c.topic), "pubsub client initialized")
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

func (c *Client) checkTopic(ctx context.Context, name string) error {
	resource := topicResource(c.projectID, name)
	if resource == "" {
		return errNoTopic
	}
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: resource})
	switch {
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("topic %q does not exist", resource)
	case err != nil:
		return fmt.Errorf("checking topic %q: %w", resource, err)
	}
	return nil
}

// NotificationPublisher returns the shared publisher for the notification topic.
func (c *Client) NotificationPublisher() *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	resource := topicResource(c.projectID, c.topic)
	if resource == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[resource]; ok {
		return p
	}
	p := c.client.Publisher(resource)
	c.publishers[resource] = p
	return p
}

// Ping is the readiness check; it confirms the topic is still reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	return c.checkTopic(ctx, c.topic)
}

// Close flushes pending messages before releasing the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for _, p := range c.publishers {
		p.Stop()
	}
	c.publishers = map[string]*pubsub.Publisher{}
	c.mu.Unlock()
	return c.client.Close()
}

// topicResource expands a bare topic id to its full resource name.
func topicResource(projectID, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/") {
		return name
	}
	if projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/topics/" + name
}
