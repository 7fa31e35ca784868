package main

import (
	"github.com/oneconcern/treemon/cmd/treemon/cmd"
)

func main() {
	cmd.Execute()
}
