package main

import (
	"os"

	"github.com/konfigurator/catalogstore/internal/cli"
	"github.com/konfigurator/catalogstore/pkg/logger"
)

func main() {
	// initialize logging (can be controlled with LOG_LEVEL env: debug|info|warn|error)
	logger.Init(os.Getenv("LOG_LEVEL"))

	if err := cli.NewRootCommand().Execute(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}
