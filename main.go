package main

import (
	"os"

	"flakeview/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
