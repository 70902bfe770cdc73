package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/local/copyshop/internal/cli"
	logpkg "github.com/local/copyshop/internal/logger"
)

const version = "0.1.0"

func main() {
	root := cli.NewRootCmd()
	// flush buffered log shipping even when a command fails
	defer logpkg.Close()

	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		logpkg.Close()
		os.Exit(1)
	}
}
