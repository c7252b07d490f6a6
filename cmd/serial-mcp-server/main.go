package main

import (
	"os"

	"github.com/nostoslabs/serial-mcp-server/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
