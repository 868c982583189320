package main

import (
	"os"

	"pricewatch/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
