// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Azure/iothub-client-go/confirm"
	"github.com/Azure/iothub-client-go/dispatch"
	"github.com/Azure/iothub-client-go/iothub"
	"github.com/Azure/iothub-client-go/message"
	"github.com/lmittmann/tint"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := slog.New(tint.NewHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	connStr := flag.String("c", "", "module connection string (default: edge environment)")
	output := flag.String("o", "output1", "output to forward messages to")
	period := flag.Duration("p", 10*time.Second, "telemetry period")
	flag.Parse()

	opts := []iothub.ClientOption{
		iothub.WithLogger(logger),
		iothub.WithObservers(dispatch.ObserveAll),
		iothub.WithInput("input1"),
		iothub.WithConfirmationHandler(func(r confirm.Result) {
			slog.Info("confirmed",
				slog.String("operation", r.Operation.String()),
				slog.String("trace_id", r.TraceID),
				slog.String("outcome", r.Outcome.String()),
				slog.Duration("elapsed", r.Elapsed),
			)
		}),
	}

	var client *iothub.Client
	if *connStr == "" {
		client = must(iothub.NewFromEdgeEnvironment(opts...))
	} else {
		client = must(iothub.NewFromConnectionString(
			iothub.Module,
			*connStr,
			opts...,
		))
	}
	defer client.Close()

	slog.Info("started", slog.String("sdk", client.SDKVersion()))
	check(client.TwinRequestAsync())

	ticker := time.NewTicker(*period)
	defer ticker.Stop()

	for n := 0; ; {
		select {
		case <-ctx.Done():
			shutdown, cancel := context.WithTimeout(
				context.Background(),
				5*time.Second,
			)
			summary := client.Shutdown(shutdown)
			cancel()
			slog.Info("stopped",
				slog.Int("pending", summary.Pending),
				slog.Int("drained", summary.Drained),
				slog.Int("aborted", summary.Aborted),
			)
			return

		case status := <-client.ConnectionStatus():
			switch s := status.(type) {
			case dispatch.Authenticated:
				slog.Info("connected")
			case dispatch.Unauthenticated:
				slog.Warn("disconnected", slog.String("reason", s.Reason.String()))
			}

		case update := <-client.TwinDesired():
			slog.Info("desired properties",
				slog.String("state", update.State.String()),
				slog.Any("desired", update.Desired),
			)
			if err := client.TwinReport(map[string]any{
				"lastDesired": update.Desired,
			}); err != nil {
				slog.Error("twin report failed", slog.Any("error", err))
			}

		case req := <-client.DirectMethods():
			slog.Info("direct method", slog.String("name", req.Name))
			check(req.Respond(dispatch.MethodResult{Payload: map[string]any{
				"method":  req.Name,
				"payload": req.Payload,
			}}))

		case msg := <-client.IncomingMessages():
			forward(client, msg, *output)

		case <-ticker.C:
			n++
			out := must(message.New().
				Body([]byte(fmt.Sprintf(`{"count":%d}`, n))).
				ContentType("application/json").
				ContentEncoding("utf-8").
				Queue(*output).
				Build())
			if err := client.SendD2CMessage(out); err != nil {
				slog.Error("send failed", slog.Any("error", err))
			}
		}
	}
}

func forward(client *iothub.Client, msg *dispatch.IncomingMessage, output string) {
	out, err := message.New().
		Body(msg.Body).
		Queue(output).
		Property("forwarded-from", msg.Queue).
		Build()
	if err == nil {
		err = client.SendD2CMessage(out)
	}
	if err != nil {
		slog.Error("forward failed", slog.Any("error", err))
		check(msg.Dispose(dispatch.Abandoned))
		return
	}
	check(msg.Dispose(dispatch.Accepted))
}

func check(e error) {
	if e != nil {
		panic(e)
	}
}

func must[T any](t T, e error) T {
	check(e)
	return t
}
