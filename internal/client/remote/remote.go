// Package remote is the tracker's request/response channel to the
// authority's tracking API.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"movetracker/internal/participant"
)

const DefaultTimeout = 10 * time.Second

// ChannelError is returned when a request could not be delivered or the
// authority answered with a non-2xx status. Status is 0 for transport
// failures.
type ChannelError struct {
	Op     string
	Status int
	Err    error
}

func (e *ChannelError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: authority returned %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

type Client struct {
	baseURL string
	token   string
	timeout time.Duration
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: DefaultTimeout,
	}
}

// Move submits a position and returns the participant's new total.
func (c *Client) Move(ctx context.Context, latitude, longitude *float64) (participant.MoveResponse, error) {
	var resp participant.MoveResponse
	agent := fiber.Post(c.baseURL + "/tracking/move").
		JSON(participant.MoveRequest{Latitude: latitude, Longitude: longitude})
	if err := c.do(ctx, "move", agent, &resp); err != nil {
		return participant.MoveResponse{}, err
	}
	return resp, nil
}

// Current fetches the full participant snapshot.
func (c *Client) Current(ctx context.Context) (participant.Participant, error) {
	var p participant.Participant
	if err := c.do(ctx, "current", fiber.Get(c.baseURL+"/tracking/current"), &p); err != nil {
		return participant.Participant{}, err
	}
	return p, nil
}

func (c *Client) do(ctx context.Context, op string, agent *fiber.Agent, out any) error {
	if err := ctx.Err(); err != nil {
		fiber.ReleaseAgent(agent)
		return &ChannelError{Op: op, Err: err}
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	agent.Set(fiber.HeaderAuthorization, "Bearer "+c.token).Timeout(timeout)

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return &ChannelError{Op: op, Err: errs[0]}
	}
	if status < 200 || status > 299 {
		return &ChannelError{Op: op, Status: status, Err: errors.New(strings.TrimSpace(string(body)))}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ChannelError{Op: op, Status: status, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
