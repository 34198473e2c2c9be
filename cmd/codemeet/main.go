// Command codemeet は面接スケジューリングとビデオ通話のAPIサーバー、ワーカー、マイグレーションを起動する。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/codemeet/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "codemeet: %v\n", err)
		os.Exit(1)
	}
}
