// Command authclient is a terminal client for the marketplace API. It keeps
// credentials in a local file (or Redis) between invocations and refreshes
// them transparently.
//
// Configuration comes from AUTHCLIENT_* environment variables or a .env file;
// see authclient.LoadConfigFromEnv.
package main

import (
	"fmt"
	"os"
)

var Version = "dev"

func main() {
	root, a := newRootCmd()
	err := root.Execute()
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
