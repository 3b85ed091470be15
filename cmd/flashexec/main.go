package main

import (
	"os"

	"github.com/flashexec/flashexec/internal/app"
)

func main() {
	runner := app.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}
