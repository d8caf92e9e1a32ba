package main

import (
	"os"

	"github.com/galias/stressline/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
