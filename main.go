package main

import (
	"github.com/foomo/posstore/cmd"
)

func main() {
	cmd.Execute()
}
