package main

import (
	"log/slog"
	"os"

	"github.com/efuayankey/aimes-sub001/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		slog.Error("counselor-service", "error", err)
		os.Exit(1)
	}
}
