package main

import "time"

// GlobalFlags holds persistent flags shared by all commands
type GlobalFlags struct {
	Root string
	Wait time.Duration
}

// RunFlags holds flags for the run command
type RunFlags struct {
	Args       []string
	KeepServer bool
}

// ServeFlags holds flags for the serve command
type ServeFlags struct {
	Listen  string
	APIBase string
	Metrics bool
	NoStart bool
}

// UserFlags holds flags for the user command
type UserFlags struct {
	Profile      string
	ShowPassword bool
}
