// compare.go implements the 'syncstress compare' command.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kolkov/queuedsync/internal/stress"
)

// compareCommand implements 'syncstress compare BASE CURRENT' and returns
// the exit code. It fails when the reports come from incompatible
// versions or when a scenario in CURRENT failed.
func compareCommand(args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: syncstress compare BASE.json CURRENT.json")
		return 2
	}
	code, err := compareFiles(args[0], args[1], os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return code
}

func compareFiles(basePath, curPath string, out io.Writer) (int, error) {
	base, err := loadReport(basePath)
	if err != nil {
		return 2, err
	}
	cur, err := loadReport(curPath)
	if err != nil {
		return 2, err
	}
	cmp, err := stress.Compare(base, cur)
	if err != nil {
		return 2, err
	}
	cmp.Format(out)
	if !cur.Passed() {
		return 1, nil
	}
	return 0, nil
}

func loadReport(path string) (*stress.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	rep, err := stress.ReadReport(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rep, nil
}
