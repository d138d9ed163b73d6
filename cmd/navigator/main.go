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
			fmt.Fprintln(os.Stderr, "usage: navigator setup [--force] [--db-dsn dsn] [--redis-url url]")
			fmt.Fprintln(os.Stderr, "       navigator run api|client|all")
			fmt.Fprintln(os.Stderr, "       navigator bridge <trigger> [--field name=value]...")
			fmt.Fprintln(os.Stderr, "       navigator timeline import <file> [--db]")
			fmt.Fprintln(os.Stderr, "       navigator smoke [--url url]")
			os.Exit(2)
		}
		log.Fatal(err)
	}
}
