package cmd

import (
	"fmt"
)

// Version is stamped by the release build.
var Version = "dev"

const banner = `
  __  __  _  ____      __               _   _
 |  \/  || |/ /\ \    / /              | | | |
 | \  / || ' /  \ \  / /   __ _  _   _ | | | |_
 | |\/| ||  <    \ \/ /   / _` + "`" + ` || | | || | | __|
 | |  | || . \    \  /   | (_| || |_| || | | |_
 |_|  |_||_|\_\    \/     \__,_| \__,_||_|  \__|

`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Local Secrets Engine - Version %s\x1b[0m\n\n", Version)
}
