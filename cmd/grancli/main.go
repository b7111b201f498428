// Command grancli is a thin manual-smoke-test wrapper around
// internal/client: connect to a gRPC server, list its services, describe a
// symbol, or invoke a method with a JSON body, printing JSON results to
// stdout.
//
// Grounded on the teacher's cmd/connectrpc-catalog/main.go for flag parsing
// and graceful shutdown, scaled down to stdlib flag (no cobra, no embedded
// UI) since this is a smoke-test CLI, not the product surface.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jrschumacher/granc-go/internal/client"
	"github.com/jrschumacher/granc-go/internal/format"
	"github.com/jrschumacher/granc-go/internal/transport"
)

func main() {
	var (
		target   = flag.String("target", "", "gRPC server address, host:port")
		insecure = flag.Bool("insecure", true, "disable TLS")
		tlsName  = flag.String("tls-server-name", "", "enable TLS and verify against this server name")
		timeout  = flag.Duration("dial-timeout", 10*time.Second, "connection timeout")
		cmd      = flag.String("cmd", "list", "one of: list, describe, call")
		symbol   = flag.String("symbol", "", "fully qualified service/message/enum name (describe), or service.Method (call)")
		body     = flag.String("body", "{}", "JSON request body (call)")
		header   = flag.String("header", "", "comma-separated key=value request headers (call)")
	)
	flag.Parse()

	if *target == "" {
		log.Fatal("grancli: -target is required")
	}

	ctx, cancel := signalContext()
	defer cancel()

	opts := []client.ClientOption{client.WithDialTimeout(*timeout)}
	if *tlsName != "" {
		opts = append(opts, client.WithTLS(*tlsName))
	} else if *insecure {
		opts = append(opts, client.WithInsecure())
	}

	c, err := client.Dial(ctx, *target, opts...)
	if err != nil {
		log.Fatalf("grancli: connect: %v", err)
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			log.Printf("grancli: close: %v", cerr)
		}
	}()

	switch *cmd {
	case "list":
		runList(ctx, c)
	case "describe":
		runDescribe(ctx, c, *symbol)
	case "call":
		runCall(ctx, c, *symbol, *body, *header)
	default:
		log.Fatalf("grancli: unknown -cmd %q (want list, describe, or call)", *cmd)
	}
}

func runList(ctx context.Context, c *client.ReflectionClient) {
	services, err := c.ListServices(ctx)
	if err != nil {
		log.Fatalf("grancli: list services: %v", err)
	}
	for _, s := range services {
		fmt.Println(s)
	}
}

func runDescribe(ctx context.Context, c *client.ReflectionClient, symbol string) {
	if symbol == "" {
		log.Fatal("grancli: -symbol is required for -cmd=describe")
	}
	d, err := c.Describe(ctx, symbol)
	if err != nil {
		log.Fatalf("grancli: describe %s: %v", symbol, err)
	}
	text, err := format.Text(d)
	if err != nil {
		log.Fatalf("grancli: format %s: %v", symbol, err)
	}
	fmt.Println(text)
}

func runCall(ctx context.Context, c *client.ReflectionClient, symbol, body, headerFlag string) {
	idx := strings.LastIndex(symbol, ".")
	if idx < 0 {
		log.Fatalf("grancli: -symbol must be service.Method for -cmd=call, got %q", symbol)
	}
	service, method := symbol[:idx], symbol[idx+1:]

	req := transport.Request{
		Service: service,
		Method:  method,
		Body:    json.RawMessage(body),
		Headers: parseHeaders(headerFlag),
	}

	resp, err := c.Dynamic(ctx, req)
	if err != nil {
		log.Fatalf("grancli: call %s: %v", symbol, err)
	}
	printResponse(resp)
}

func parseHeaders(flagVal string) []transport.KV {
	if flagVal == "" {
		return nil
	}
	var kvs []transport.KV
	for _, pair := range strings.Split(flagVal, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		kvs = append(kvs, transport.KV{Key: k, Value: v})
	}
	return kvs
}

func printResponse(resp transport.Response) {
	enc := json.NewEncoder(os.Stdout)
	switch resp.Kind {
	case transport.Unary:
		printResult(enc, resp.One)
	case transport.Streaming:
		if resp.StreamStatus != nil {
			fmt.Fprintf(os.Stderr, "grancli: stream error: %s\n", resp.StreamStatus.Err())
			return
		}
		for _, r := range resp.Many {
			printResult(enc, r)
		}
	}
}

func printResult(enc *json.Encoder, r transport.Result) {
	if r.Status != nil {
		fmt.Fprintf(os.Stderr, "grancli: rpc error: %s\n", r.Status.Err())
		return
	}
	var v any
	if err := json.Unmarshal(r.JSON, &v); err != nil {
		io.WriteString(os.Stdout, string(r.JSON)+"\n")
		return
	}
	_ = enc.Encode(v)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()
	return ctx, cancel
}
