// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/stepwright/stepwright"
)

func main() {
	templatesPath := flag.String("templates", "", "Path to YAML/JSON tab template file")
	validateFlag := flag.Bool("validate", false, "Only validate templates without running")
	streamFlag := flag.Bool("stream", false, "Emit each record as soon as it completes")
	profilerFlag := flag.Bool("profiler", false, "Enable profiler output (JSON per step)")
	headlessFlag := flag.Bool("headless", true, "Run the browser headless")
	execPath := flag.String("exec-path", "", "Path to the Chrome/Chromium binary")
	flag.Parse()

	if *templatesPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -templates flag is required")
		flag.Usage()
		os.Exit(1)
	}

	tabs, validationErrs, err := stepwright.LoadTemplates(*templatesPath)
	if len(validationErrs) > 0 {
		fmt.Fprintln(os.Stderr, "Template validation failed:")
		for _, e := range validationErrs {
			fmt.Fprintf(os.Stderr, "  - %s: %s\n", e.Location, e.Message)
		}
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("Failed to load templates: %v", err)
	}

	if *validateFlag {
		fmt.Println("Templates are valid")
		return
	}

	ctx := context.Background()
	browser, err := stepwright.NewCDPBrowser(ctx, stepwright.CDPOptions{
		Headless: *headlessFlag,
		ExecPath: *execPath,
	})
	if err != nil {
		log.Fatalf("Failed to launch browser: %v", err)
	}
	defer browser.Close(ctx)

	scraper := stepwright.NewScraper(browser)

	var wg sync.WaitGroup
	if *profilerFlag {
		events := scraper.EnableProfiler(0)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range events {
				data, err := json.Marshal(ev)
				if err != nil {
					log.Printf("Failed to marshal profiler event: %v", err)
					continue
				}
				fmt.Println(string(data))
			}
		}()
	}

	if *streamFlag {
		err = scraper.RunWithCallback(ctx, tabs, func(record stepwright.Record, index int) {
			data, merr := json.Marshal(record)
			if merr != nil {
				log.Printf("Failed to marshal record %d: %v", index, merr)
				return
			}
			fmt.Printf("STREAM: %s\n", string(data))
		})
		wg.Wait()
		if err != nil {
			log.Fatalf("Run failed: %v", err)
		}
		return
	}

	records, err := scraper.Run(ctx, tabs)
	wg.Wait()
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}

	data, err := json.Marshal(records)
	if err != nil {
		log.Fatalf("Failed to marshal result: %v", err)
	}
	fmt.Printf("RESULT: %s\n", string(data))
}
