package main

import (
	"log"

	"github.com/taskman/taskman/cmd/taskmanctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
