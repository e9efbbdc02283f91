package main

import (
	"os"

	"github.com/ylongwang2782/embedded-review/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
