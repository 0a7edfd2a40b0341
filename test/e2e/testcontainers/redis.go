package testcontainers

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"procodus.dev/hardwater/internal/store"
)

// StartRedis starts a Redis container and returns the store settings that
// reach it. The returned config has no Logger set.
func StartRedis(ctx context.Context, containerName string) (testcontainers.Container, *store.RedisConfig, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("6379/tcp"),
				wait.ForLog("Ready to accept connections"),
			),
			Name: containerName,
		},
		Started: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start Redis container: %w", err)
	}

	host, port, err := endpoint(ctx, container, "6379")
	if err != nil {
		return nil, nil, err
	}

	return container, &store.RedisConfig{
		Addr: fmt.Sprintf("%s:%d", host, port),
	}, nil
}
