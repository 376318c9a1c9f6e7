package main

import "github.com/mknotes/mkvault/cmd/mkvault/cmd"

func main() {
	cmd.Execute()
}
