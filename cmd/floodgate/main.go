// Command floodgate is the CLI entrypoint: a thin wrapper around the
// cobra command tree defined in this module's cmd package.
package main

import "github.com/floodgate-dl/floodgate/cmd"

func main() {
	cmd.Execute()
}
