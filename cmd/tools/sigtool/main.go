// sigtool appends hand-written signals to the signal log and inspects its
// tail. It writes the same bare-JSON lines a real signal producer would,
// under the same advisory lock the intake honors.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"

	"tradecore/internal/ops"
	"tradecore/internal/schema"
	"tradecore/pkg/flock"
)

func main() {
	dataDir := flag.String("data-dir", "data", "Data directory")
	symbol := flag.String("symbol", "", "Symbol to signal (append mode)")
	side := flag.String("side", "", "LONG, SHORT or CLOSE (append mode)")
	price := flag.Float64("price", 0, "Signal price")
	risk := flag.Float64("risk", 25, "Risk in USD")
	source := flag.String("source", "sigtool", "Signal source tag")
	tail := flag.Int("tail", 0, "Print the last N log lines and exit")
	flag.Parse()

	cfg := ops.Default()
	cfg.DataDir = *dataDir
	path := cfg.SignalLogPath()

	if *tail > 0 {
		if err := printTail(path, *tail); err != nil {
			fmt.Fprintf(os.Stderr, "tail failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *symbol == "" || !schema.Side(*side).Valid() {
		fmt.Fprintln(os.Stderr, "append mode needs -symbol and a valid -side")
		os.Exit(1)
	}
	sig := schema.Signal{
		Ts:       schema.EpochSeconds(time.Now()),
		Symbol:   *symbol,
		Side:     schema.Side(*side),
		Price:    *price,
		RiskUSD:  *risk,
		Source:   *source,
		SignalID: fmt.Sprintf("sigtool-%d", time.Now().UnixNano()),
	}
	if err := appendSignal(path, sig); err != nil {
		fmt.Fprintf(os.Stderr, "append failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("appended %s %s to %s\n", sig.Side, sig.Symbol, path)
}

func appendSignal(path string, sig schema.Signal) error {
	line, err := sonic.Marshal(sig)
	if err != nil {
		return err
	}
	lk, err := flock.Acquire(path+".lock", 5*time.Second)
	if err != nil {
		return err
	}
	defer func() {
		_ = lk.Release()
	}()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func printTail(path string, n int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}
