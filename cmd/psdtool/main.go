// Command psdtool inspects Photoshop documents and exports their pixels.
package main

import (
	"os"

	"github.com/webtoon/psd/internal/logger"
)

func main() {
	err := Execute()
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}
