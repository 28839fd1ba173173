package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/config"
	"gitlab.com/talagas/dashboard/order-notifier/internal/bootstrap"
	"gitlab.com/talagas/dashboard/order-notifier/pkg/contextkeys"
)

func main() {
	configFile := pflag.StringP("config", "c", "", "Path to the YAML config file (default: VIPER_CONFIG_PATH/VIPER_CONFIG_NAME)")
	pflag.Parse()

	ctx := context.WithValue(context.Background(), contextkeys.RequestIDKey, "app-main")

	app, cleanup, err := bootstrap.InitializeApp(ctx, config.File(*configFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := app.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Application run failed: %v\n", err)
		cleanup()
		os.Exit(1)
	}
}
