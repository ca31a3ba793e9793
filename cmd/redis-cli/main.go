package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pior/redisproto"
	"github.com/pior/redisproto/resp"
)

func main() {
	servers := flag.String("servers", "localhost:6379", "Comma-separated list of servers")
	flag.Parse()

	addrs := strings.Split(*servers, ",")

	fmt.Println("Redis CLI Tool")
	fmt.Println("==============")
	fmt.Println("Any Redis command is sent as typed: GET key, SET key \"some value\", ...")
	fmt.Println("Local commands: pipe <cmd>; <cmd>; ..., stats, ping, help, quit")
	fmt.Println()

	client, err := redisproto.NewClient(redisproto.NewStaticServers(addrs...), redisproto.Config{})
	if err != nil {
		fmt.Printf("Failed to create client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		ctx := context.Background()

		switch strings.ToLower(strings.Fields(line)[0]) {
		case "quit", "exit":
			fmt.Println("Goodbye!")
			return

		case "help":
			fmt.Println("Commands:")
			fmt.Println("  <any redis command>      - Sent as typed, with redis-cli quoting rules")
			fmt.Println("  pipe <cmd>; <cmd>; ...   - Send several commands as one pipeline")
			fmt.Println("  stats                    - Show client and pool statistics")
			fmt.Println("  ping                     - Ping all servers")
			fmt.Println("  quit                     - Exit the CLI")

		case "stats":
			handleStats(client)

		case "ping":
			handlePing(ctx, client)

		case "pipe":
			handlePipeline(ctx, client, addrs[0], strings.TrimSpace(line[len("pipe"):]))

		default:
			handleCommand(ctx, client, addrs[0], line)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading input: %v\n", err)
	}
}

// handleCommand sends one command line and prints the reply.
func handleCommand(ctx context.Context, client *redisproto.Client, fallbackAddr, line string) {
	req := &resp.Request{}
	if err := req.Append(line); err != nil {
		fmt.Printf("Bad command: %v\n", err)
		return
	}

	start := time.Now()
	rsp, err := execute(ctx, client, fallbackAddr, line, req)
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}
	fmt.Printf("%s (took %v)\n", rsp.Reply(0), duration)
}

// handlePipeline sends semicolon-separated commands as a single request
// and prints the replies in order.
func handlePipeline(ctx context.Context, client *redisproto.Client, fallbackAddr, pipeline string) {
	req := &resp.Request{}
	var first string
	for _, command := range strings.Split(pipeline, ";") {
		command = strings.TrimSpace(command)
		if command == "" {
			continue
		}
		if first == "" {
			first = command
		}
		if err := req.Append(command); err != nil {
			fmt.Printf("Bad command %q: %v\n", command, err)
			return
		}
	}
	if req.CommandCount() == 0 {
		fmt.Println("Usage: pipe <cmd>; <cmd>; ...")
		return
	}

	start := time.Now()
	rsp, err := execute(ctx, client, fallbackAddr, first, req)
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}
	for i := 0; i < rsp.ReplyCount(); i++ {
		fmt.Printf("%d) %s\n", i+1, rsp.Reply(i))
	}
	fmt.Printf("(%d replies, %d bytes, took %v)\n", rsp.ReplyCount(), rsp.ByteSize(), duration)
}

// execute routes by the command's key when it has one, so the CLI lands
// on the same server a program using Do would.
func execute(ctx context.Context, client *redisproto.Client, fallbackAddr, command string, req *resp.Request) (*resp.Response, error) {
	tokens, err := resp.SplitCommand(command)
	if err == nil && len(tokens) >= 2 {
		return client.Do(ctx, string(tokens[1]), req)
	}
	return client.DoAddr(ctx, fallbackAddr, req)
}

func handleStats(client *redisproto.Client) {
	stats := client.Stats()
	fmt.Println("Client statistics:")
	fmt.Printf("  Gets: %d (hits: %d)\n", stats.Gets, stats.GetHits)
	fmt.Printf("  Sets: %d\n", stats.Sets)
	fmt.Printf("  Adds: %d\n", stats.Adds)
	fmt.Printf("  Deletes: %d\n", stats.Deletes)
	fmt.Printf("  Increments: %d\n", stats.Increments)
	fmt.Printf("  Pipelines: %d\n", stats.Pipelines)
	fmt.Printf("  Errors: %d\n", stats.Errors)

	poolStats := client.AllPoolStats()
	if len(poolStats) == 0 {
		fmt.Println("No pools created yet")
		return
	}
	for _, stat := range poolStats {
		fmt.Printf("Pool %s:\n", stat.Addr)
		fmt.Printf("  Connections: %d (idle: %d)\n", stat.PoolStats.TotalConns, stat.PoolStats.IdleConns)
		fmt.Printf("  Created: %d, Destroyed: %d\n", stat.PoolStats.CreatedConns, stat.PoolStats.DestroyedConns)
		fmt.Printf("  Circuit breaker: %s\n", stat.CircuitBreakerState)
	}
}

func handlePing(ctx context.Context, client *redisproto.Client) {
	start := time.Now()
	err := client.Ping(ctx)
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("Ping failed: %v (took %v)\n", err, duration)
		return
	}
	fmt.Printf("Ping successful (took %v)\n", duration)
}
