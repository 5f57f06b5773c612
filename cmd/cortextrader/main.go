package main

import (
	"os"

	"github.com/dyike/cortextrader/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
