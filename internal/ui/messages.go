package ui

import (
	"usmconv/internal/progress"
)

type updateMsg struct {
	U progress.Update
}

type logMsg struct {
	L progress.Log
}

type resultMsg struct {
	R progress.Result
}

// runDoneMsg is sent when the run function returns, including when it was
// rejected before any Result was reported.
type runDoneMsg struct {
	Err error
}

// forceQuitMsg fires when a cancelled run outlives the grace period.
type forceQuitMsg struct{}
