// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package iothub

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

// ClientOptionsFromEnv parses client options from well-known environment
// variables. It fails if the timeout or logs variable does not parse.
//
//   - DO_WORK_FREQUENCY_IN_MS: native pump interval in milliseconds (0-100);
//     invalid values are ignored.
//   - IOTHUB_CONFIRMATION_TIMEOUT: confirmation timeout, in seconds or as an
//     ISO 8601 duration.
//   - IOTHUB_SDK_LOGS: enables the native SDK's verbose logging.
func ClientOptionsFromEnv() (*ClientOptions, error) {
	opts := &ClientOptions{}

	for _, env := range os.Environ() {
		idx := strings.IndexByte(env, '=')
		key := env[:idx]
		val := env[idx+1:]
		switch key {
		case "DO_WORK_FREQUENCY_IN_MS":
			// Unparseable values are ignored and logged when the client is
			// set up, like out-of-range ones.
			ms, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				opts.DoWorkFrequency = nil
				opts.invalidDoWork = val
				continue
			}
			d := time.Duration(ms) * time.Millisecond
			opts.DoWorkFrequency = &d
			opts.invalidDoWork = ""

		case "IOTHUB_CONFIRMATION_TIMEOUT":
			timeout, err := parseTimeout(val)
			if err != nil {
				return nil, &InvalidArgumentError{
					message: "could not parse confirmation timeout",
					wrapped: err,
				}
			}
			opts.ConfirmationTimeout = timeout

		case "IOTHUB_SDK_LOGS":
			logs, err := strconv.ParseBool(val)
			if err != nil {
				return nil, &InvalidArgumentError{
					message: "could not parse SDK logs flag",
					wrapped: err,
				}
			}
			opts.SDKLogs = logs
		}
	}

	return opts, nil
}

// parseTimeout accepts plain seconds or an ISO 8601 duration.
func parseTimeout(val string) (time.Duration, error) {
	if secs, err := strconv.ParseUint(val, 10, 32); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := duration.Parse(val)
	if err != nil {
		return 0, err
	}
	return d.ToTimeDuration(), nil
}
