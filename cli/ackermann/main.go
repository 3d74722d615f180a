// Package main is the ackermann command line tool.
package main

import (
	"log"
	"os"

	"go.viam.com/ackermann/cli"
)

func main() {
	if err := cli.NewApp(os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
