// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package thumbnails

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/cardinalhq/thumbsync/internal/cloudstorage"
)

// Outcome is how a single thumbnail deletion ended.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeNotFound
	OutcomeTransientError
	OutcomeFatalError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeTransientError:
		return "transient_error"
	case OutcomeFatalError:
		return "fatal_error"
	default:
		return "unknown"
	}
}

// Stage is a step of the per-event state machine.
type Stage int

const (
	StageReceived Stage = iota
	StagePathDerived
	StageDeleteAttempted
	StageCompleted
)

func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "received"
	case StagePathDerived:
		return "path_derived"
	case StageDeleteAttempted:
		return "delete_attempted"
	case StageCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Result describes one handled deletion event. Stage is always StageCompleted
// when returned from Handle; LastStage is the furthest step before that.
type Result struct {
	Outcome   Outcome
	Stage     Stage
	LastStage Stage
	Container string
	Path      string
	Err       error
}

// RedeliveryPolicy decides whether a result should be handed back to the
// platform for another delivery attempt.
type RedeliveryPolicy struct {
	RedeliverTransient bool
}

func (p RedeliveryPolicy) ShouldRedeliver(r Result) bool {
	return r.Outcome == OutcomeTransientError && p.RedeliverTransient
}

type httpStatusError interface {
	HTTPStatusCode() int
}

// Classify maps a store error onto an Outcome.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}

	if cloudstorage.IsNotFound(err) {
		return OutcomeNotFound
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return OutcomeTransientError
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return classifyStatus(respErr.StatusCode)
	}

	var statusErr httpStatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr.HTTPStatusCode())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return OutcomeTransientError
	}

	return OutcomeFatalError
}

func classifyStatus(code int) Outcome {
	switch {
	case code == http.StatusNotFound:
		return OutcomeNotFound
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return OutcomeTransientError
	default:
		return OutcomeFatalError
	}
}
