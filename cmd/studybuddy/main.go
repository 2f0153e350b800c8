package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	var root = &cobra.Command{Use: "studybuddy"}

	root.AddCommand(serveCMD(), migrateCMD())
	_ = root.Execute()
}
