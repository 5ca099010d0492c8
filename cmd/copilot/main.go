package main

import "github.com/MartyZhou/vscode-copilot-as-service/internal/cli"

func main() {
	cli.Execute()
}
