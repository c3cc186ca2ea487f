package main

import (
	"flag"
	"log"

	"cyberwatch-soc/core/appbootstrap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()
	if err := appbootstrap.Run(*configPath); err != nil {
		log.Fatalf("cyberwatch: %v", err)
	}
}
