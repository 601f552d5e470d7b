package genctl

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"genbridge/pkg/types"
)

// consoleReporter prints job progress to the terminal and prompts on payment
// requests. Progress lines overwrite each other; terminal states get their
// own line.
type consoleReporter struct {
	out io.Writer
	in  io.Reader
}

func (r *consoleReporter) Progress(jobID string, progress float64, label string) {
	fmt.Fprintf(r.out, "\r[%s] %-40s", jobID, label)
	if label == "finished" {
		fmt.Fprintln(r.out)
	}
}

func (r *consoleReporter) ConfirmPayment(p types.PaymentRequired) bool {
	fmt.Fprintf(r.out, "\nThe backend requires payment or more credits.\n")
	if p.Details != "" {
		fmt.Fprintf(r.out, "  %s\n", p.Details)
	}
	if p.Credits != nil {
		fmt.Fprintf(r.out, "  credits remaining: %d\n", *p.Credits)
	}
	fmt.Fprintf(r.out, "  billing page: %s\n", p.URL)
	fmt.Fprint(r.out, "Open later and retry. Acknowledge? [y/N] ")
	line, err := bufio.NewReader(r.in).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func (r *consoleReporter) Notify(err error) {
	fmt.Fprintf(r.out, "\nerror: %v\n", err)
}
