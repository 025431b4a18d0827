package discourse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	DefaultHost     = "https://community.sonarsource.com"
	DefaultCategory = 15

	topicFooter = "<!-- this topic was created by sonar-update-center-action -->"
)

type ErrorResponse struct {
	StatusCode int
	Status     string
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("failed to create a topic in the community forum: unexpected status code: %d, message: %s", e.StatusCode, e.Status)
}

type createTopicRequest struct {
	Title    string `json:"title"`
	Category int    `json:"category"`
	Raw      string `json:"raw"`
}

type createTopicResponse struct {
	TopicID   int    `json:"topic_id"`
	TopicSlug string `json:"topic_slug"`
}

type Client struct {
	host       string
	apiKey     string
	category   int
	httpClient *retryablehttp.Client
}

func New(host, apiKey string, category int) *Client {
	if host == "" {
		host = DefaultHost
	}
	if category == 0 {
		category = DefaultCategory
	}
	httpClient := retryablehttp.NewClient()
	httpClient.Logger = nil
	httpClient.HTTPClient.Timeout = time.Minute
	// hand the last response back so its status ends up in ErrorResponse
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return &Client{
		host:       host,
		apiKey:     apiKey,
		category:   category,
		httpClient: httpClient,
	}
}

// WithRetryWait overrides the backoff bounds between retried requests.
func (c *Client) WithRetryWait(minWait, maxWait time.Duration) *Client {
	c.httpClient.RetryWaitMin = minWait
	c.httpClient.RetryWaitMax = maxWait
	return c
}

func TopicTitle(mavenArtifactID, publicVersion string) string {
	return fmt.Sprintf("[NEW RELEASE] %s %s", mavenArtifactID, publicVersion)
}

// CreateTopic posts a release announcement and returns the URL of the new topic.
func (c *Client) CreateTopic(ctx context.Context, mavenArtifactID, publicVersion, body string) (string, error) {
	var reqBody bytes.Buffer
	err := json.NewEncoder(&reqBody).Encode(&createTopicRequest{
		Title:    TopicTitle(mavenArtifactID, publicVersion),
		Category: c.category,
		Raw:      fmt.Sprintf("%s\n%s", body, topicFooter),
	})
	if err != nil {
		return "", err
	}
	endpoint, err := url.JoinPath(c.host, "posts.json")
	if err != nil {
		return "", err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, reqBody.Bytes())
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", &ErrorResponse{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	var topic createTopicResponse
	if err := json.NewDecoder(resp.Body).Decode(&topic); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return url.JoinPath(c.host, "t", topic.TopicSlug, strconv.Itoa(topic.TopicID))
}
