// gramlink はメッセージングネットワークとのアカウント連携サービス。
// serve / worker / migrate / healthcheck のサブコマンドで起動する。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/gramlink/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "gramlink: %v\n", err)
		os.Exit(1)
	}
}
