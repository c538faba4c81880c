package main

import (
	"fmt"
	"os"

	"github.com/Clarence1208/PAMP-submissions-service/internal/adapter/cli"
)

func main() {
	root := cli.NewRootCommand(cli.Dependencies{Version: version})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"
