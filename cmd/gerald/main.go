// Gerald is a chat bot that learns vocabulary from the rooms it sits in and
// only ever replies with words it has heard there.
//
// See internal/gerald/cli for the environment variables it reads.
package main

import (
	"os"

	"github.com/bdobrica/gerald/internal/gerald/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
