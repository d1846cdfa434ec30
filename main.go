package main

import (
	"github.com/AzielCF/az-cache/cmd"
)

func main() {
	cmd.Execute()
}
