// Command sealdrop-demo walks the full share lifecycle against a
// throwaway data directory: upload a note, hand the code to a fresh
// unlock session, decrypt with the wrong and then the right password,
// and watch burn-on-read remove the record.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sealdrop/sealdrop"
	"github.com/sealdrop/sealdrop/pkg/pack"
	"github.com/sealdrop/sealdrop/pkg/unlock"
)

func main() {
	dataDir, err := os.MkdirTemp("", "sealdrop-demo-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dataDir)

	sd, err := sealdrop.New(sealdrop.Config{
		Paths:         []string{dataDir},
		MinimumFreeGB: 1,
		Origin:        "https://drop.example.org",
	})
	if err != nil {
		log.Fatalf("configure: %s", err)
	}

	ctx := context.Background()
	if err := sd.Start(ctx); err != nil {
		log.Fatalf("start: %s", err)
	}
	defer sd.Close()

	receipt, err := sd.Upload(ctx,
		[]byte("meet me at the usual place, 18:00"),
		"text/plain", "note.txt",
		pack.Options{
			BurnOnRead: true,
			BurnDelay:  2 * time.Second,
			TTL:        time.Hour,
		},
		"hunter2",
	)
	if err != nil {
		log.Fatalf("upload: %s", err)
	}

	fmt.Println("share code:", receipt.Code)
	fmt.Println("locator:   ", receipt.Locator)
	fmt.Println("expires:   ", receipt.ExpiresAt.Format(time.RFC3339))

	session, err := sd.NewSession()
	if err != nil {
		log.Fatalf("session: %s", err)
	}
	defer session.Close()

	state, err := session.Begin(ctx, string(receipt.Code))
	if err != nil {
		log.Fatalf("begin: %s", err)
	}
	fmt.Println("after code-only attempt:", state)

	if _, err := session.SubmitPassword(ctx, "wrong"); errors.Is(err, unlock.ErrIncorrectSecret) {
		fmt.Println("wrong password rejected")
	}

	if _, err := session.SubmitPassword(ctx, "hunter2"); err != nil {
		log.Fatalf("unlock: %s", err)
	}

	p, ok := session.Package()
	if !ok {
		log.Fatal("no package after unlock")
	}
	fmt.Printf("unlocked %s (%s): %q\n", p.FileName, p.MimeType, p.Payload)

	if _, err := session.Reveal(); err != nil {
		log.Fatalf("reveal: %s", err)
	}
	fmt.Println("revealed; burn scheduled in", p.Options.BurnDelay)

	// Let the burn countdown fire, then show the code is gone.
	time.Sleep(p.Options.BurnDelay + time.Second)
	fmt.Println("session state:", session.State())

	second, err := sd.NewSession()
	if err != nil {
		log.Fatalf("session: %s", err)
	}
	defer second.Close()

	if _, err := second.Begin(ctx, string(receipt.Code)); errors.Is(err, unlock.ErrNotFound) {
		fmt.Println("second lookup: code no longer exists")
	}
}
