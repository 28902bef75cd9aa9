package main

import (
	"os"

	"github.com/haloydev/deploybot/internal/deploybotcli"
)

func main() {
	os.Exit(deploybotcli.Execute())
}
