package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/yeganesereshgi/Demo-Experiment/internal/tracker"
)

func handleDevices(args []string) {
	fs := flag.NewFlagSet("devices", flag.ExitOnError)
	configPath := fs.String("config", "", "Experiment configuration (JSON)")
	usbOnly := fs.Bool("usb", false, "Only list USB serial adapters")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	found, err := serialEnumerator(cfg, *usbOnly).FindAll(context.Background())
	if err != nil {
		log.Fatalf("Failed to list serial ports: %v", err)
	}
	if len(found) == 0 {
		fmt.Printf("⚠️  %v\n", tracker.ErrNoDevices)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tPORT\tNAME\tPRODUCT\tSERIAL")
	for i, info := range found {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i, info.Address, info.Name, info.Model, info.SerialNumber)
	}
	w.Flush()
}
