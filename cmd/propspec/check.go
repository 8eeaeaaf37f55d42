package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/gnana997/propspec/pkg/catalog"
	"github.com/gnana997/propspec/pkg/validator"
)

// errViolations reports error-severity usage violations.
var errViolations = errors.New("usage check failed")

func runCheck(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("check", "-catalog <file> [flags] <file>...", stderr)
	catalogPath := fs.String("catalog", "", "catalog file written by 'propspec scan -catalog'")
	asJSON := fs.Bool("json", false, "print the results as JSON")
	var common commonFlags
	common.register(fs)

	files, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(files) == 0 || *catalogPath == "" {
		fs.Usage()
		return errUsage
	}

	qs, err := catalog.LoadAndQuery(*catalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	cfg, err := loadConfig(common.configPath)
	if err != nil {
		return err
	}
	v := validator.New(qs, newLogger(cfg, common.verbose, stderr))
	defer v.Close()

	results := make([]*validator.ValidationResult, 0, len(files))
	valid := true
	for _, file := range files {
		res, err := v.ValidateFile(file)
		if err != nil {
			return err
		}
		results = append(results, res)
		valid = valid && res.Valid
	}

	if *asJSON {
		if err := writeJSON(stdout, results); err != nil {
			return err
		}
	} else {
		printViolations(stdout, results)
	}

	if !valid {
		return errViolations
	}
	return nil
}

func printViolations(w io.Writer, results []*validator.ValidationResult) {
	total, checked := 0, 0
	for _, res := range results {
		checked += res.Checked
		for _, vl := range res.Violations {
			total++
			c := yellow
			if vl.Severity == validator.SeverityError {
				c = red
			}
			fmt.Fprintf(w, "%s:%d:%d: ", res.FilePath, vl.Line, vl.Column)
			c.Fprintf(w, "%s", vl.Severity)
			fmt.Fprintf(w, " %s: %s", vl.Rule, vl.Message)
			if vl.Suggestion != "" {
				fmt.Fprintf(w, " (%s)", vl.Suggestion)
			}
			fmt.Fprintln(w)
		}
	}
	if total == 0 {
		green.Fprintf(w, "%d usages checked, no problems\n", checked)
		return
	}
	fmt.Fprintf(w, "%d usages checked, %d problems\n", checked, total)
}
