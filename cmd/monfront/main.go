// monfront serves the monitoring front end: session login, anti-forgery
// protected actions and the audit log in front of the monitoring API.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
