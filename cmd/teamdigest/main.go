package main

import "teamdigest/cmd/handlers"

func main() {
	handlers.Execute()
}
