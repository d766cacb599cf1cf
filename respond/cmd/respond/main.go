// Command respond runs the detection and incident response service and its
// operator commands.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
