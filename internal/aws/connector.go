package aws

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ClientFactory builds a fresh set of service clients.
type ClientFactory func(ctx context.Context) (*AWSClients, error)

// Connector owns the process-wide database handle. The first successful
// Connect is cached for the lifetime of the Connector; callers arriving while
// an attempt is in flight wait on that same attempt.
type Connector struct {
	factory ClientFactory
	tables  []string
	logger  *zap.Logger

	group   singleflight.Group
	mu      sync.RWMutex
	clients *AWSClients
}

// NewConnector returns a Connector that verifies every table in tables
// before reporting a connection as ready.
func NewConnector(factory ClientFactory, tables []string, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		factory: factory,
		tables:  tables,
		logger:  logger,
	}
}

// Connect returns the cached clients or establishes them.
// A failed attempt is not cached, so the next call starts over.
func (c *Connector) Connect(ctx context.Context) (*AWSClients, error) {
	if clients := c.cached(); clients != nil {
		return clients, nil
	}

	v, err, shared := c.group.Do("connect", func() (interface{}, error) {
		if clients := c.cached(); clients != nil {
			return clients, nil
		}
		c.logger.Info("establishing new database connection", zap.Strings("tables", c.tables))

		clients, err := c.factory(ctx)
		if err != nil {
			return nil, err
		}
		if clients == nil || clients.DynamoDB == nil {
			return nil, errors.New("no document store client configured")
		}
		for _, table := range c.tables {
			if _, err := clients.DynamoDB.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: &table}); err != nil {
				return nil, fmt.Errorf("describe table %s: %w", table, err)
			}
		}

		c.mu.Lock()
		c.clients = clients
		c.mu.Unlock()
		c.logger.Info("database connection ready")
		return clients, nil
	})
	if err != nil {
		c.logger.Error("failed to connect to database", zap.Error(err), zap.Bool("shared_attempt", shared))
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return v.(*AWSClients), nil
}

func (c *Connector) cached() *AWSClients {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clients
}
