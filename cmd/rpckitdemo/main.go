// Command rpckitdemo wires a Client to an in-process memtransport, drives a
// query, a mutation and a subscription through the contract-driven Proxy
// surface, and prints what it observes. It exists to exercise the runtime
// end to end outside of its unit tests, the way a small smoke harness would.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tomtom215/rpckit"
	"github.com/tomtom215/rpckit/transport/memtransport"
)

type greetInput struct {
	Name string `json:"name"`
}

type greetOutput struct {
	Message string `json:"message"`
}

func main() {
	configFile := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg, err := loadDemoConfig(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	transport := memtransport.New()
	transport.RegisterCall("greeter.hello", func(ctx context.Context, input any) (any, error) {
		name := "world"
		switch in := input.(type) {
		case greetInput:
			name = in.Name
		case map[string]any:
			if n, ok := in["name"].(string); ok && n != "" {
				name = n
			}
		}
		return greetOutput{Message: "hello, " + name}, nil
	})
	transport.RegisterCall("greeter.rename", func(ctx context.Context, input any) (any, error) {
		return greetOutput{Message: "renamed"}, nil
	})

	client := rpckit.New(transport,
		rpckit.WithTimeout(cfg.Timeout),
		rpckit.WithDebug(cfg.Debug),
		rpckit.WithSubscriptionPaths("greeter.events"),
		rpckit.WithReconnect(rpckit.ReconnectConfig{
			AutoReconnect:  true,
			MaxReconnects:  cfg.MaxReconnects,
			ReconnectDelay: cfg.ReconnectDelay,
		}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	greeter := client.Proxy().Path("greeter")

	result, err := greeter.Path("hello").Query(ctx, greetInput{Name: "rpckit"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "query failed:", err)
		os.Exit(1)
	}
	fmt.Printf("query result: %+v\n", result)

	result, err = greeter.Path("rename").Mutate(ctx, greetInput{Name: "rpckit"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "mutate failed:", err)
		os.Exit(1)
	}
	fmt.Printf("mutate result: %+v\n", result)

	handle, err := greeter.Path("events").Subscribe(ctx, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "subscribe failed:", err)
		os.Exit(1)
	}
	defer handle.Cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = transport.PublishData("greeter.events", greetOutput{Message: "tick 1"})
		_ = transport.PublishData("greeter.events", greetOutput{Message: "tick 2"})
		_ = transport.PublishCompleted("greeter.events")
	}()

	for {
		ev, err := handle.Next(ctx)
		if err != nil {
			fmt.Println("subscription ended:", err)
			break
		}
		fmt.Printf("event: %+v\n", ev)
	}
}
