package main

import (
	"log/slog"
	"os"

	"licensed/internal/app"
	"licensed/internal/infrastructure"
)

func main() {
	application, err := app.NewApplication()
	if err != nil {
		slog.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		infrastructure.GetLogger().Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
