// fabricctl is the thin command-line front end: it composes wire messages
// for a peer (or the tracker) and prints the responses. It carries no
// fabric logic of its own.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/types"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: fabricctl -addr host:port <command> [args]

commands:
  submit <function> [json-args]   submit a task (flags: -program, -priority,
                                  -confidential, -dispatch, -retries, -timeout)
  cancel <task-id>                cancel a queued task
  history [limit]                 show task history
  mem set <key> <json-value>      set a memory key
  mem get <key>                   get a memory key
  mem del <key>                   delete a memory key
  mem list                        list memory keys
  file put <name> <path>          upload a local file
  file get <name> [path]          fetch a file
  file del <name>                 delete a file
  file list                       list files
  file find <name>                ask the tracker who has a file
  file fetch <name> [path]        chunked download from the network
  owned put <name> <path> [n]     encrypt-upload with n replicas
  owned get <name> [path]         download an owned file
  owned del <name>                delete an owned file everywhere
  owned list                      list files this peer owns
  status                          node status
`)
	os.Exit(2)
}

func main() {
	addr := flag.String("addr", "127.0.0.1:9000", "peer (or tracker) address")
	program := flag.String("program", "", "opaque program source for submit")
	priority := flag.Int("priority", 0, "task priority (higher runs first)")
	confidential := flag.Bool("confidential", false, "execute locally, never dispatch")
	dispatch := flag.Bool("dispatch", false, "forward to the least-loaded peer")
	retries := flag.Int("retries", 0, "max retries on failure")
	timeout := flag.Int("timeout", 0, "per-task timeout in seconds")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var err error
	switch args[0] {
	case "submit":
		err = cmdSubmit(ctx, *addr, args[1:], *program, *priority, *confidential, *dispatch, *retries, *timeout)
	case "cancel":
		err = expectArgs(args, 2, func() error {
			return call(ctx, *addr, wire.CancelRequest{Type: wire.TypeCancelTask, TaskID: args[1]})
		})
	case "history":
		limit := 20
		if len(args) > 1 {
			limit, _ = strconv.Atoi(args[1])
		}
		err = call(ctx, *addr, wire.HistoryRequest{Type: wire.TypeTaskHistory, Limit: limit})
	case "mem":
		err = cmdMem(ctx, *addr, args[1:])
	case "file":
		err = cmdFile(ctx, *addr, args[1:])
	case "owned":
		err = cmdOwned(ctx, *addr, args[1:])
	case "status":
		err = call(ctx, *addr, wire.StatusRequest{Type: wire.TypeStatus})
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "fabricctl: %v\n", err)
		os.Exit(1)
	}
}

func expectArgs(args []string, n int, fn func() error) error {
	if len(args) < n {
		usage()
	}
	return fn()
}

// call sends one request and pretty-prints the raw response.
func call(ctx context.Context, addr string, req any) error {
	raw, err := wire.CallRaw(ctx, addr, req)
	if err != nil {
		return err
	}
	var pretty any
	if err := json.Unmarshal(raw, &pretty); err != nil {
		return err
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(out))
	return nil
}

func cmdSubmit(ctx context.Context, addr string, args []string, program string,
	priority int, confidential, dispatch bool, retries, timeout int) error {
	if len(args) < 1 {
		usage()
	}
	var taskArgs []any
	if len(args) > 1 {
		if err := json.Unmarshal([]byte(args[1]), &taskArgs); err != nil {
			return fmt.Errorf("args must be a JSON array: %w", err)
		}
	}
	task := types.Task{
		ID:           "T-" + uuid.NewString()[:8],
		Program:      program,
		Function:     args[0],
		Args:         taskArgs,
		Confidential: confidential,
		Priority:     priority,
		MaxRetries:   retries,
		TimeoutSec:   timeout,
	}
	return call(ctx, addr, wire.TaskRequest{Type: wire.TypeCPUTask, Task: task, Dispatch: dispatch})
}

func cmdMem(ctx context.Context, addr string, args []string) error {
	if len(args) < 1 {
		usage()
	}
	switch args[0] {
	case "set":
		if len(args) < 3 {
			usage()
		}
		var value any
		if err := json.Unmarshal([]byte(args[2]), &value); err != nil {
			value = args[2] // plain string fallback
		}
		return call(ctx, addr, wire.MemRequest{Type: wire.TypeSetMem, Key: args[1], Value: value})
	case "get":
		if len(args) < 2 {
			usage()
		}
		return call(ctx, addr, wire.MemRequest{Type: wire.TypeGetMem, Key: args[1]})
	case "del":
		if len(args) < 2 {
			usage()
		}
		return call(ctx, addr, wire.MemRequest{Type: wire.TypeDelMem, Key: args[1]})
	case "list":
		return call(ctx, addr, wire.MemRequest{Type: wire.TypeListMem})
	}
	usage()
	return nil
}

func cmdFile(ctx context.Context, addr string, args []string) error {
	if len(args) < 1 {
		usage()
	}
	switch args[0] {
	case "put":
		if len(args) < 3 {
			usage()
		}
		data, err := os.ReadFile(args[2])
		if err != nil {
			return err
		}
		return call(ctx, addr, wire.FileRequest{Type: wire.TypePutFile, Filename: args[1], Data: data})
	case "get", "fetch":
		if len(args) < 2 {
			usage()
		}
		msgType := wire.TypeGetFile
		if args[0] == "fetch" {
			msgType = wire.TypeDownloadFile
		}
		return fetchFile(ctx, addr, wire.FileRequest{Type: msgType, Filename: args[1]}, args)
	case "del":
		if len(args) < 2 {
			usage()
		}
		return call(ctx, addr, wire.FileRequest{Type: wire.TypeDeleteFile, Filename: args[1]})
	case "list":
		return call(ctx, addr, wire.FileRequest{Type: wire.TypeListFile})
	case "find":
		if len(args) < 2 {
			usage()
		}
		return call(ctx, addr, wire.FindFileRequest{Type: wire.TypeFindFile, Filename: args[1]})
	}
	usage()
	return nil
}

func cmdOwned(ctx context.Context, addr string, args []string) error {
	if len(args) < 1 {
		usage()
	}
	switch args[0] {
	case "put":
		if len(args) < 3 {
			usage()
		}
		data, err := os.ReadFile(args[2])
		if err != nil {
			return err
		}
		replication := 1
		if len(args) > 3 {
			replication, _ = strconv.Atoi(args[3])
		}
		return call(ctx, addr, wire.UploadOwnedRequest{
			Type:        wire.TypeUploadOwnedFile,
			Filename:    args[1],
			Data:        data,
			Replication: replication,
		})
	case "get":
		if len(args) < 2 {
			usage()
		}
		return fetchFile(ctx, addr, wire.FileRequest{Type: wire.TypeDownloadOwnedFile, Filename: args[1]}, args)
	case "del":
		if len(args) < 2 {
			usage()
		}
		return call(ctx, addr, wire.FileRequest{Type: wire.TypeRemoveOwnedFile, Filename: args[1]})
	case "list":
		return call(ctx, addr, wire.FileRequest{Type: wire.TypeListOwnedFiles})
	}
	usage()
	return nil
}

// fetchFile prints a file response, or writes the payload to the optional
// destination path argument.
func fetchFile(ctx context.Context, addr string, req wire.FileRequest, args []string) error {
	raw, err := wire.CallRaw(ctx, addr, req)
	if err != nil {
		return err
	}
	var resp wire.FileResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return err
	}
	if len(args) > 2 {
		if err := os.WriteFile(args[2], resp.Data, 0o644); err != nil {
			return err
		}
		fmt.Printf("wrote %d bytes to %s\n", len(resp.Data), args[2])
		return nil
	}
	os.Stdout.Write(resp.Data)
	return nil
}
