package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/odyssey-erp/truckdispatch/cmd/dispatchctl/cli"
)

func main() {
	_ = godotenv.Load()
	if err := cli.Execute(); err != nil {
		slog.Default().Error("dispatchctl", slog.Any("error", err))
		os.Exit(1)
	}
}
