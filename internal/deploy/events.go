// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

package deploy

import (
	"time"

	"github.com/toeirei/launchpad/internal/logging"
	"github.com/toeirei/launchpad/internal/model"
)

// Event reports progress of a deployment. Stage is the status the deployment
// is in when the event is emitted.
type Event struct {
	DeploymentID string
	Service      string
	Stage        model.DeploymentStatus
	Message      string
	Err          error
	At           time.Time
}

// Observer receives deployment events. Implementations must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) { f(e) }

// LogObserver writes events to the package logger.
type LogObserver struct{}

// Observe logs e at info level, or error level when e carries an error.
func (LogObserver) Observe(e Event) {
	if e.Err != nil {
		logging.Errorf("[%s] %s: %s: %v", e.Service, e.Stage, e.Message, e.Err)
		return
	}
	logging.Infof("[%s] %s: %s", e.Service, e.Stage, e.Message)
}
