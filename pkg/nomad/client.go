// Package nomad reads node and allocation metadata from the Nomad API.
package nomad

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/cloudless/alloy-discovery/pkg/transport"
)

// ErrNoNodeID is returned when the allocation record carries no node id
var ErrNoNodeID = errors.New("allocation has no node id")

// Client is a read-only view of the Nomad API
type Client struct {
	transport transport.Transport
	logger    *zap.Logger
}

// NewClient creates a client on top of t
func NewClient(t transport.Transport, logger *zap.Logger) *Client {
	return &Client{
		transport: t,
		logger:    logger,
	}
}

// ResolveNodeIdentity returns the id of the node running allocID.
// The node of a running process never changes, so callers resolve it once.
func (c *Client) ResolveNodeIdentity(ctx context.Context, allocID string) (string, error) {
	if allocID == "" {
		return "", errors.New("allocation id is required")
	}

	var alloc Allocation
	if err := c.transport.Get(ctx, "/v1/allocation/"+url.PathEscape(allocID), &alloc); err != nil {
		return "", fmt.Errorf("failed to get allocation %s: %w", allocID, err)
	}

	if alloc.NodeID == "" {
		return "", fmt.Errorf("allocation %s: %w", allocID, ErrNoNodeID)
	}

	return alloc.NodeID, nil
}

// ListNodeAllocations returns every allocation scheduled on nodeID.
// Failures are logged and yield an empty list; the next poll retries.
func (c *Client) ListNodeAllocations(ctx context.Context, nodeID string) []Allocation {
	var raw []json.RawMessage
	if err := c.transport.Get(ctx, "/v1/node/"+url.PathEscape(nodeID)+"/allocations", &raw); err != nil {
		c.logger.Error("Failed to list node allocations",
			zap.String("node_id", nodeID),
			zap.String("endpoint", c.transport.Endpoint()),
			zap.Error(err),
		)
		return []Allocation{}
	}

	allocs := make([]Allocation, 0, len(raw))
	for i, item := range raw {
		var alloc Allocation
		if err := json.Unmarshal(item, &alloc); err != nil {
			c.logger.Warn("Skipping malformed allocation",
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}
		allocs = append(allocs, alloc)
	}

	return allocs
}
