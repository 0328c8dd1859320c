package main

import (
	"os"

	"budgetcast/internal/cli"
	"budgetcast/internal/log"
)

func main() {
	cli.LoadEnvFile()

	ctx, stop := cli.SignalContext(log.Default(log.ComponentCLI))
	code := cli.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
