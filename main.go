package main

import (
	"log"

	"github.com/sitecore/dispatchcore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
