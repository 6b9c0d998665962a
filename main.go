package main

import (
	"github.com/groupfi/treasury-engine/cmd"
)

func main() {
	cmd.Execute()
}
