//go:build wireinject
// +build wireinject

//go:generate wire

package bootstrap

import (
	"context"

	"github.com/google/wire"

	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/config"
)

// InitializeApp creates and initializes a new application instance with all its dependencies.
// The cleanup function returned releases providers in reverse order.
func InitializeApp(ctx context.Context, file config.File) (*App, func(), error) {
	wire.Build(ProviderSet)
	return nil, nil, nil
}
