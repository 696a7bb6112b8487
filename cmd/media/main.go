package main

import (
	"os"

	"github.com/romariotrain/vod-platform/internal/app"
)

func main() {
	os.Exit(app.Run("media", run))
}
