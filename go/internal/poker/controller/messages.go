package controller

import "github.com/mcdev12/pokersync/go/internal/poker/events"

// msg is a request from outside the dispatcher goroutine.
type msg interface {
	isControllerMsg()
}

type joinMsg struct {
	RoomCode string
	UserName string
	Reply    chan error
}

type leaveMsg struct {
	Reply chan error
}

// roomCommandMsg carries any command that needs a joined session.
type roomCommandMsg struct {
	Command events.Command
	Reply   chan error
}

type clearErrorMsg struct {
	Reply chan error
}

func (joinMsg) isControllerMsg()        {}
func (leaveMsg) isControllerMsg()       {}
func (roomCommandMsg) isControllerMsg() {}
func (clearErrorMsg) isControllerMsg()  {}
