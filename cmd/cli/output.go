package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

var stdout io.Writer = os.Stdout

func validateOutput(format string) error {
	switch format {
	case outputTable, outputJSON, outputYAML:
		return nil
	}
	return fmt.Errorf("unsupported output format %q (want table, json or yaml)", format)
}

// printStructured prints raw API JSON in the selected structured format and
// reports whether it did. Table output is left to the caller.
func printStructured(raw []byte) (bool, error) {
	switch flagOutput {
	case outputJSON:
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return true, fmt.Errorf("failed to parse response: %w", err)
		}
		printJSON(v)
		return true, nil
	case outputYAML:
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return true, fmt.Errorf("failed to parse response: %w", err)
		}
		return true, printYAML(v)
	}
	return false, nil
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to marshal JSON: %v\n", err)
		return
	}
	fmt.Fprintln(stdout, string(data))
}

func printYAML(v interface{}) error {
	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return enc.Close()
}

func printTable(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}

func printMessage(msg string) {
	fmt.Fprintln(stdout, msg)
}

func confirmAction(prompt string, skipConfirm bool) bool {
	if skipConfirm {
		return true
	}

	fmt.Printf("%s [y/N]: ", prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
		return answer == "y" || answer == "yes"
	}
	return false
}
