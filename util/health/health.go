// Package health aggregates dependency probes into the readiness and
// liveness verdicts the HTTP health endpoints serve.
package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Check is a named probe. The bool argument distinguishes liveness (is the
// process itself sane) from readiness (are collaborators reachable); probes
// that only make sense for readiness return OK for liveness.
type Check struct {
	Name  string
	Check func(context.Context, bool) (int, string, error)
}

// CheckAll runs every probe and folds the results into one HTTP status plus
// a JSON body listing each dependency. Any non-OK probe makes the overall
// verdict 503; probes themselves never abort the sweep.
func CheckAll(ctx context.Context, checkLiveness bool, checks []Check) (int, string, error) {
	var (
		overallStatus = http.StatusOK
		messages      = make([]string, 0, len(checks))
	)

	for _, check := range checks {
		status, message, err := check.Check(ctx, checkLiveness)
		if err != nil || status != http.StatusOK {
			overallStatus = http.StatusServiceUnavailable
		}

		var msg string

		// A probe that already reports JSON gets embedded as nested
		// dependencies instead of quoted.
		if len(message) > 0 && message[0] == '{' && message[len(message)-1] == '}' {
			msg = fmt.Sprintf(`{"resource": "%s", "status": "%d", "error": "%v", "dependencies": [%s]}`, check.Name, status, err, message)
		} else {
			msg = fmt.Sprintf(`{"resource": "%s", "status": "%d", "error": "%v", "message": "%s"}`, check.Name, status, err, message)
		}

		messages = append(messages, msg)
	}

	return overallStatus, fmt.Sprintf(`{"status":"%d", "dependencies":[%s]}`, overallStatus, strings.Join(messages, ",\n")), nil
}
