package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"secret-santa/internal/assignment"
	"secret-santa/internal/notify"
	"secret-santa/internal/queue"
	"secret-santa/internal/storage"
)

type consoleDeps struct {
	engine   *assignment.Engine
	notifier *notify.Service
	queue    *queue.Queue
	store    *storage.Storage
	batch    int
}

// startConsole runs the interactive admin menu on stdin until the user exits
// or ctx is cancelled.
func startConsole(ctx context.Context, stop context.CancelFunc, d *consoleDeps) {
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("🎅 Secret Santa admin console")
	fmt.Println("=============================")

	for ctx.Err() == nil {
		fmt.Println("\nCommands:")
		fmt.Println("  1. Validate game")
		fmt.Println("  2. View draw status")
		fmt.Println("  3. View participants")
		fmt.Println("  4. Send game start notification")
		fmt.Println("  5. Process SMS queue now")
		fmt.Println("  6. Exit")
		fmt.Print("\nEnter command (1-6): ")

		if !scanner.Scan() {
			return
		}

		switch strings.TrimSpace(scanner.Text()) {
		case "1":
			validateGame(ctx, d)
		case "2":
			viewStatus(ctx, d)
		case "3":
			viewParticipants(ctx, d)
		case "4":
			sendGameStart(ctx, d)
		case "5":
			processQueue(ctx, d)
		case "6":
			fmt.Println("Exiting...")
			stop()
			return
		default:
			fmt.Println("Invalid command. Please try again.")
		}
	}
}

func validateGame(ctx context.Context, d *consoleDeps) {
	v, err := d.engine.Validate(ctx)
	if err != nil {
		fmt.Printf("❌ Error validating game: %v\n", err)
		return
	}
	if !v.Possible {
		fmt.Printf("❌ Game is not possible: %s\n", v.Reason)
		return
	}
	fmt.Println("✅ Game is possible")
	if v.Warning != "" {
		fmt.Printf("⚠️  %s\n", v.Warning)
	}
}

func viewStatus(ctx context.Context, d *consoleDeps) {
	status, err := d.engine.Status(ctx)
	if err != nil {
		fmt.Printf("❌ Error loading status: %v\n", err)
		return
	}
	fmt.Printf("\n📋 %d of %d participants have drawn (%d%%)\n",
		status.PickedCount, status.TotalParticipants, status.PercentComplete)
	if len(status.NotPicked) > 0 {
		fmt.Println(strings.Repeat("-", 60))
		fmt.Println("Still to draw:")
		for _, p := range status.NotPicked {
			fmt.Printf("  %s\n", p.FirstName)
		}
	}
}

func viewParticipants(ctx context.Context, d *consoleDeps) {
	participants, err := d.store.ListParticipants(ctx)
	if err != nil {
		fmt.Printf("❌ Error loading participants: %v\n", err)
		return
	}
	if len(participants) == 0 {
		fmt.Println("\nNo participants found.")
		return
	}

	fmt.Printf("\n📋 All Participants (%d total):\n", len(participants))
	fmt.Println(strings.Repeat("-", 60))
	for _, p := range participants {
		fmt.Printf("Name: %s\n", p.FirstName)
		fmt.Printf("Phone: %s\n", p.PhoneNumber)
		fmt.Printf("Has picked: %t\n", p.HasPicked)
		if p.PickedAt != nil {
			fmt.Printf("Picked at: %s\n", p.PickedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Println(strings.Repeat("-", 60))
	}
}

func sendGameStart(ctx context.Context, d *consoleDeps) {
	res, err := d.notifier.NotifyGameStart(ctx)
	if err != nil {
		fmt.Printf("❌ Error queueing notifications: %v\n", err)
		return
	}
	fmt.Printf("✅ Queued %d of %d game start messages\n", res.Queued, res.Total)
}

func processQueue(ctx context.Context, d *consoleDeps) {
	res, err := d.queue.ProcessQueue(ctx, d.batch)
	if err != nil {
		fmt.Printf("❌ Error processing queue: %v\n", err)
		return
	}
	if res.Skipped {
		fmt.Printf("⏸  Skipped: %s\n", res.Message)
		return
	}
	fmt.Printf("✅ %s (%d sent, %d failed)\n", res.Message, res.Succeeded, res.Failed)
}
