package main

import (
	"os"

	"horse.fit/newsgraph/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
