package main

type command string

const (
	commandServe       command = "serve"
	commandMigrate     command = "migrate"
	commandHealthcheck command = "healthcheck"
)

// parseCommand returns the subcommand in args, defaulting to serve
func parseCommand(args []string) command {
	if len(args) == 0 {
		return commandServe
	}
	switch command(args[0]) {
	case commandMigrate:
		return commandMigrate
	case commandHealthcheck:
		return commandHealthcheck
	default:
		return commandServe
	}
}
