package main

import "github.com/Davincible/gemini-claude-proxy/cmd"

func main() {
	cmd.Execute()
}
