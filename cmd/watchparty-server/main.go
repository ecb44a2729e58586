// Package main is the entry point of watchparty-server (HTTP + WebSocket).
package main

import (
	"log"

	"github.com/PhilippeSteinbach/WatchParty/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
