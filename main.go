package main

import "docverify/internal/app"

func main() {
	app.Main()
}
