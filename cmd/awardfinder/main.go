package main

import "awardfinder-backend/cmd/awardfinder/cmd"

func main() {
	cmd.Execute()
}
