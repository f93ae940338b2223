package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/chepyr/go-todo-tracker/internal/config"
	"github.com/chepyr/go-todo-tracker/internal/db"
	"github.com/chepyr/go-todo-tracker/internal/models"
	"github.com/chepyr/go-todo-tracker/internal/session"
)

const usage = `usage: todo <command> [arguments]

commands:
  add <title>               add a pending task
  list [-filter f] [-q text] [-desc]
                            list tasks, f is all, active or completed
  toggle <id>               flip a task between pending and completed
  done <id>                 mark a task completed
  reopen <id>               mark a task pending
  edit <id> <title>         rename a task
  rm <id>                   delete a task
  clear-completed           delete every completed task
  stats                     show counts and completion rate
  reset                     delete every task and the stored data

<id> may be the start or the end of a task id, as long as it matches one task.
`

var errUsage = errors.New("invalid usage")

func main() {
	log.SetFlags(0)
	log.SetPrefix("todo: ")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx := context.Background()
	backend, err := db.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("open %s storage: %v", cfg.Backend, err)
	}

	s := session.Open(ctx, db.NewTaskStoreFromConfig(backend, cfg, log.Default()))
	runErr := run(ctx, s, os.Args[1:], os.Stdout)

	if err := s.Close(ctx); err != nil && runErr == nil {
		runErr = err
	}
	if err := backend.Close(); err != nil {
		log.Printf("close storage: %v", err)
	}

	if runErr != nil {
		if errors.Is(runErr, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		log.Fatal(runErr)
	}
}

func run(ctx context.Context, s *session.Session, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "add":
		title := strings.Join(rest, " ")
		task, err := s.Add(ctx, title)
		if task.ID != "" {
			printTask(out, task)
		}
		return err

	case "list", "ls":
		return list(s, rest, out)

	case "toggle":
		return modify(s, rest, out, func(id string) (models.Task, error) {
			return s.Toggle(ctx, id)
		})

	case "done":
		return modify(s, rest, out, func(id string) (models.Task, error) {
			return s.SetStatus(ctx, id, models.TaskStatusCompleted)
		})

	case "reopen":
		return modify(s, rest, out, func(id string) (models.Task, error) {
			return s.SetStatus(ctx, id, models.TaskStatusPending)
		})

	case "edit":
		if len(rest) < 2 {
			return errUsage
		}
		title := strings.Join(rest[1:], " ")
		return modify(s, rest[:1], out, func(id string) (models.Task, error) {
			return s.Rename(ctx, id, title)
		})

	case "rm":
		if len(rest) != 1 {
			return errUsage
		}
		task, err := s.Resolve(rest[0])
		if err != nil {
			return err
		}
		if err := s.Delete(ctx, task.ID); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted %s\n", shortID(task.ID))
		return nil

	case "clear-completed":
		removed, err := s.ClearCompleted(ctx)
		fmt.Fprintf(out, "removed %d completed tasks\n", removed)
		return err

	case "stats":
		printStats(out, s.Stats())
		return nil

	case "reset":
		if err := s.Reset(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "all tasks deleted")
		return nil

	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func list(s *session.Session, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	filter := fs.String("filter", "all", "all, active or completed")
	query := fs.String("q", "", "only titles containing this text")
	desc := fs.Bool("desc", false, "newest first")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	f, ok := models.ParseFilter(*filter)
	if !ok {
		return fmt.Errorf("%w: unknown filter %q", errUsage, *filter)
	}

	view := s.View(session.ViewOptions{Filter: f, Query: *query, Descending: *desc})
	if len(view) == 0 {
		fmt.Fprintln(out, "no tasks")
	}
	for _, task := range view {
		printTask(out, task)
	}
	printStats(out, s.Stats())
	return nil
}

func modify(s *session.Session, args []string, out io.Writer, fn func(id string) (models.Task, error)) error {
	if len(args) != 1 {
		return errUsage
	}
	task, err := s.Resolve(args[0])
	if err != nil {
		return err
	}
	updated, err := fn(task.ID)
	if updated.ID != "" {
		printTask(out, updated)
	}
	return err
}

func printTask(out io.Writer, task models.Task) {
	mark := " "
	if task.IsCompleted() {
		mark = "x"
	}
	fmt.Fprintf(out, "[%s] %s  %s  (%s)\n", mark, shortID(task.ID), task.Title,
		task.CreatedAt.Local().Format(time.DateTime))
}

func printStats(out io.Writer, stats models.TaskStats) {
	fmt.Fprintf(out, "%d total, %d pending, %d completed, %d%% done\n",
		stats.Total, stats.Pending, stats.Completed, stats.CompletionRate)
}

// shortID keeps the random tail of a UUIDv7; the head is a timestamp.
func shortID(id string) string {
	if len(id) > 13 {
		return id[len(id)-12:]
	}
	return id
}
