package main

import (
	"os"

	"go-calendar-core/core/logger"
	"go-calendar-core/core/server"
)

func main() {
	if err := server.Run(); err != nil {
		logger.Error("Main:Run:Error", "error", err)
		os.Exit(1)
	}
}
