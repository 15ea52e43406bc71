// Command bulkflow runs and inspects outbound bulk transfers.
package main

import (
	"fmt"
	"os"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
