package main

import (
	"fmt"
	"os"

	"github.com/rickchristie/postgres-crud-mcp/internal/meta"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe()
	case "configure":
		err = runConfigure()
	case "doctor":
		err = runDoctor()
	case "version", "--version":
		fmt.Println("gopgcrud", meta.Version)
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("gopgcrud: PostgreSQL CRUD MCP Server")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  gopgcrud serve       Start the MCP server")
	fmt.Println("  gopgcrud configure   Run interactive configuration wizard")
	fmt.Println("  gopgcrud doctor      Validate the config and print agent connection snippets")
	fmt.Println("  gopgcrud version     Print the version")
	fmt.Println("  gopgcrud --help      Show this help message")
}
