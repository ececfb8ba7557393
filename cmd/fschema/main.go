// Command fschema converts StructureDefinitions to FHIR Schema and
// validates resource instances against them.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	fschema "github.com/gofhir/fschema"
	"github.com/gofhir/fschema/convert"
	"github.com/gofhir/fschema/registry"
	"github.com/gofhir/fschema/schema"
	"github.com/gofhir/fschema/stream"
	"github.com/gofhir/fschema/validate"
)

const usage = `fschema - StructureDefinition to FHIR Schema converter and validator

Usage:
  fschema -sd <dir-or-file>[,...] [-profile <url>[,...]] [-strict] <resource.json>...
  fschema -sd <dir-or-file>[,...] [-profile <url>[,...]] -bundle <bundle.json> [-workers N]
  fschema -convert -sd <file> [-out <file>]

Options:
`

func main() {
	var sdPaths, profiles, out, bundlePath string
	var strict, convertOnly bool
	var bundleWorkers int

	flag.StringVar(&sdPaths, "sd", "", "comma-separated StructureDefinition JSON files or directories")
	flag.StringVar(&profiles, "profile", "", "comma-separated schema URLs to seed validation with")
	flag.BoolVar(&strict, "strict", false, "treat unknown elements as errors")
	flag.BoolVar(&convertOnly, "convert", false, "convert a single StructureDefinition to FHIR Schema and print it")
	flag.StringVar(&out, "out", "", "output file for -convert (default stdout)")
	flag.StringVar(&bundlePath, "bundle", "", "validate every entry of a Bundle JSON file")
	flag.IntVar(&bundleWorkers, "workers", 4, "parallel workers for -bundle")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if sdPaths == "" {
		flag.Usage()
		os.Exit(2)
	}

	sdFiles, err := expandPaths(strings.Split(sdPaths, ","))
	if err != nil {
		fmt.Fprintln(os.Stderr, "fschema:", err)
		os.Exit(1)
	}

	conv := convert.New()

	if convertOnly {
		if len(sdFiles) != 1 {
			fmt.Fprintln(os.Stderr, "fschema: -convert requires exactly one -sd file")
			os.Exit(1)
		}
		if err := runConvert(conv, sdFiles[0], out); err != nil {
			fmt.Fprintln(os.Stderr, "fschema:", err)
			os.Exit(1)
		}
		return
	}

	reg := registry.New()
	var seedURLs []string
	for _, f := range sdFiles {
		sc, err := loadSchema(conv, f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fschema: %s: %v\n", f, err)
			os.Exit(1)
		}
		reg.Put(sc)
		seedURLs = append(seedURLs, sc.URL)
	}
	if profiles != "" {
		seedURLs = append(seedURLs, strings.Split(profiles, ",")...)
	}

	opts := fschema.DefaultOptions()
	opts.StrictMode = strict
	v := validate.New(reg, validate.WithOptions(opts))

	if bundlePath != "" {
		ok, err := runBundle(v, seedURLs, bundlePath, bundleWorkers)
		if err != nil {
			fmt.Fprintln(os.Stderr, "fschema:", err)
			os.Exit(1)
		}
		if !ok {
			os.Exit(1)
		}
		return
	}

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "fschema: no resource files given")
		os.Exit(2)
	}

	exitCode := 0
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fschema: %s: %v\n", f, err)
			exitCode = 1
			continue
		}
		res := v.Validate(data, seedURLs)
		printResult(f, res)
		if !res.Valid {
			exitCode = 1
		}
		res.Release()
	}
	os.Exit(exitCode)
}

func loadSchema(conv *convert.Converter, path string) (*schema.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return conv.Convert(data)
}

func runConvert(conv *convert.Converter, path, out string) error {
	sc, err := loadSchema(conv, path)
	if err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return err
	}
	if out == "" {
		fmt.Println(string(encoded))
		return nil
	}
	return os.WriteFile(out, encoded, 0o644)
}

// runBundle streams entries out of the Bundle at path, validates each in
// parallel against v, and prints an aggregate summary plus any issues found.
// It reports whether the bundle validated cleanly.
func runBundle(v *validate.Validator, seedURLs []string, path string, workers int) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	bv := stream.NewBundleValidator(v, seedURLs).WithWorkerCount(workers)
	results := bv.ValidateStreamParallel(context.Background(), f)
	agg := stream.Aggregate(results)

	for _, procErr := range agg.ProcessingErrors {
		fmt.Fprintln(os.Stderr, "fschema:", procErr)
	}
	indices := make([]int, 0, len(agg.Issues))
	for idx := range agg.Issues {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	for _, idx := range indices {
		fmt.Printf("== entry %d ==\n", idx)
		for _, iss := range agg.Issues[idx] {
			fmt.Printf("  [%s] %s at %s: %s\n", iss.Severity, iss.Code, iss.Path, iss.Message)
		}
	}
	fmt.Println(agg.Summary())

	return !agg.HasErrors(), nil
}

func expandPaths(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			files = append(files, filepath.Join(p, e.Name()))
		}
	}
	return files, nil
}

func printResult(name string, res *fschema.Result) {
	status := "VALID"
	if !res.Valid {
		status = "INVALID"
	}
	fmt.Printf("== %s ==\n%s\n", name, status)
	for _, iss := range res.Issues {
		fmt.Printf("  [%s] %s at %s: %s\n", iss.Severity, iss.Code, iss.Path, iss.Message)
	}
	fmt.Println()
}
