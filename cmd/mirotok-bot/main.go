package main

import "github.com/Bagi4-source/Mirotok/internal/app"

func main() {
	app.Run()
}
