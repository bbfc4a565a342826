// Command autosync mirrors configured source directories into their
// destinations with rsync and keeps them in sync as files change.
package main

import "github.com/autosync-project/autosync/internal/cli"

func main() {
	cli.Execute()
}
