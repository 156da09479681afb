package main

import (
	"vaultwatcher/internal/cli"
)

func main() {
	cli.Execute()
}
