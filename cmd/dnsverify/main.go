// Command dnsverify statically verifies an authoritative DNS configuration
// against a declarative set of properties, without issuing a single network
// query.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/classmarkets/dnsverify/internal/report"
	"github.com/classmarkets/dnsverify/internal/verifier"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("dnsverify", flag.ContinueOnError)
	workers := fs.Int("workers", 1, "number of ECs to verify concurrently (1 = sequential)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: dnsverify <input_dir>")
		return 2
	}
	dir := fs.Arg(0)

	warn := log.New(os.Stderr, "dnsverify: ", 0)

	r, err := verifier.Run(dir, verifier.Options{Workers: *workers, Warn: warn})
	if err != nil {
		warn.Println(err)
		return 1
	}

	report.Write(os.Stdout, r)
	return 0
}
