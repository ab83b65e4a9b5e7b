package main

import (
	"log"

	"github.com/MrSnakeDoc/lineup/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ lineup failed to start: %v", err)
	}
}
