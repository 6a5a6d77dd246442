package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PanicError is returned by Run when fn panics
type PanicError struct {
	Task  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Task, e.Value)
}

// Run executes fn synchronously with a timeout, converting a panic into a
// *PanicError
func Run(parent context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) (err error) {
	ctx := parent
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Task: taskName, Value: r, Stack: debug.Stack()}
		}
	}()

	return fn(ctx)
}

// Group runs background tasks with panic recovery and logs their failures.
// Wait blocks until every task started so far has finished.
type Group struct {
	log *logrus.Logger
	wg  sync.WaitGroup
}

// NewGroup creates a task group logging to log
func NewGroup(log *logrus.Logger) *Group {
	if log == nil {
		log = logrus.New()
	}
	return &Group{log: log}
}

// Go runs fn in a goroutine. The task keeps the values of parent but not its
// cancellation, so work started at the end of a request outlives it.
func (g *Group) Go(parent context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		err := Run(context.WithoutCancel(parent), timeout, taskName, fn)
		g.report(taskName, err)
	}()
}

// Wait blocks until all started tasks return
func (g *Group) Wait() {
	g.wg.Wait()
}

func (g *Group) report(taskName string, err error) {
	if err == nil {
		return
	}
	entry := g.log.WithField("task", taskName)
	if pe, ok := err.(*PanicError); ok {
		entry.WithFields(logrus.Fields{"panic": pe.Value, "stack": string(pe.Stack)}).Error("background task panicked")
		return
	}
	entry.WithError(err).Error("background task failed")
}

// SafeGo runs fn in an untracked goroutine with panic recovery
func SafeGo(parent context.Context, timeout time.Duration, taskName string, log *logrus.Logger, fn func(context.Context) error) {
	NewGroup(log).Go(parent, timeout, taskName, fn)
}
