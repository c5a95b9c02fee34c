package main

import (
	"os"

	"github.com/Paintersrp/rune2e/internal/cli"
	"github.com/Paintersrp/rune2e/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	os.Exit(cli.Execute())
}
