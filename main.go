package main

import (
	"remixai/cmd"
)

func main() {
	cmd.Execute()
}
