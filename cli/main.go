package main

import (
	"os"

	"github.com/satishbabariya/pgward/cli/commands"
)

func main() {
	os.Exit(commands.Execute())
}
