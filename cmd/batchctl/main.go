// Command batchctl is a command-line client for the imagebatch server. It
// submits prompt files, reports session progress and downloads finished
// bundles.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// serverEnv overrides the default --server value.
const serverEnv = "IMAGEBATCH_SERVER_URL"

func main() {
	// A missing .env file is normal.
	_ = godotenv.Load()

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
