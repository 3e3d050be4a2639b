package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Mongo holds the client for the conversation document store.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// NewMongo connects to the conversation store and verifies the connection.
func NewMongo(ctx context.Context, uri, database string, logger *zap.Logger) (*Mongo, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo connection URI is empty")
	}

	clientOptions := options.Client().ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetConnectTimeout(5 * time.Second).
		SetSocketTimeout(10 * time.Second)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
	defer cancelPing()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	logger.Info("mongo connection established", zap.String("database", database))
	return &Mongo{
		client: client,
		db:     client.Database(database),
		logger: logger,
	}, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	m.logger.Info("disconnecting mongo client")
	return m.client.Disconnect(ctx)
}

func (m *Mongo) Database() *mongo.Database {
	return m.db
}

func (m *Mongo) Health(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}
