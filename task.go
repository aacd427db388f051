package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/chelnak/ysmrr"
)

// TaskManager drives the spinner-based progress display. In quiet mode
// (simple/csv/json output) nothing is rendered and tasks run silently.
type TaskManager struct {
	sm    ysmrr.SpinnerManager
	quiet bool
}

type Task struct {
	spinner *ysmrr.Spinner
	manager *TaskManager
	title   string
}

func InitTaskManager(quiet bool) *TaskManager {
	tm := &TaskManager{sm: ysmrr.NewSpinnerManager(), quiet: quiet}
	if !quiet {
		tm.sm.Start()
	}
	return tm
}

func (tm *TaskManager) Stop() {
	if !tm.quiet {
		tm.sm.Stop()
	}
}

func (tm *TaskManager) Run(title string, callback func(task *Task)) {
	task := &Task{manager: tm, title: title}
	if !tm.quiet {
		task.spinner = tm.sm.AddSpinner(title)
	}
	callback(task)
}

func (t *Task) Complete() {
	if t.spinner != nil {
		t.spinner.Complete()
	}
}

func (t *Task) Printf(format string, a ...interface{}) {
	if t.spinner != nil {
		t.spinner.UpdateMessagef(format, a...)
	}
}

func (t *Task) CheckError(err error) {
	if err == nil {
		return
	}
	if t.spinner != nil {
		t.Printf("Fatal: %s, err: %v", strings.ToLower(t.title), err)
		t.spinner.Error()
		t.manager.Stop()
	} else {
		fmt.Fprintf(os.Stderr, "Fatal: %s, err: %v\n", strings.ToLower(t.title), err)
	}
	os.Exit(1)
}
