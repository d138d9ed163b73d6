package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/phillip-england/navigator/internal/navigatorcli"
)

func main() {
	if err := navigatorcli.Execute(os.Args[1:]); err != nil {
		if errors.Is(err, navigatorcli.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr, "run `navigator --help` for the command list")
			os.Exit(2)
		}
		log.Fatal(err)
	}
}
