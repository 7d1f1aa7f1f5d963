// archive bulk-loads the closed-trade history log into PostgreSQL for
// offline analysis. It runs outside the trading loop and only ever reads
// the log.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/yanun0323/logs"

	"tradecore/internal/ops"
	"tradecore/internal/schema"
	"tradecore/internal/store"
	"tradecore/pkg/conn"
)

// ClosedTrade is the archive table row, one per closed position.
type ClosedTrade struct {
	ID         uint   `gorm:"primaryKey"`
	Symbol     string `gorm:"index"`
	Side       string `gorm:"size:8"`
	Qty        float64
	EntryPrice float64
	ClosePrice float64
	PnLUSD     float64 `gorm:"column:pnl_usd"`
	OpenedAt   time.Time
	ClosedAt   time.Time `gorm:"index"`
	CloseNote  string
}

func main() {
	dataDir := flag.String("data-dir", "data", "Data directory")
	batch := flag.Int("batch", 200, "Insert batch size")
	flag.Parse()

	_ = godotenv.Load()

	cfg := ops.Default()
	cfg.DataDir = *dataDir

	history := store.NewAppendLog(cfg.HistoryLogPath(), ops.SchemaClosedPosition, cfg.LockTimeout.Std())
	positions, err := store.ReadAll[schema.Position](history)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read history failed: %v\n", err)
		os.Exit(1)
	}
	if len(positions) == 0 {
		logs.Info("history is empty, nothing to archive")
		return
	}

	pg, err := conn.OpenPostgres(conn.PostgresFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres connect failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = pg.Close()
	}()

	if err := pg.DB().AutoMigrate(&ClosedTrade{}); err != nil {
		fmt.Fprintf(os.Stderr, "migrate failed: %v\n", err)
		os.Exit(1)
	}

	rows := make([]ClosedTrade, 0, len(positions))
	for _, p := range positions {
		rows = append(rows, ClosedTrade{
			Symbol:     p.Symbol,
			Side:       string(p.Side),
			Qty:        p.Qty,
			EntryPrice: p.EntryPrice,
			ClosePrice: p.ClosePrice,
			PnLUSD:     p.PnLUSD,
			OpenedAt:   epochTime(p.OpenedTs),
			ClosedAt:   epochTime(p.ClosedTs),
			CloseNote:  p.CloseNote,
		})
	}
	if err := pg.DB().CreateInBatches(rows, *batch).Error; err != nil {
		fmt.Fprintf(os.Stderr, "insert failed: %v\n", err)
		os.Exit(1)
	}
	logs.Infof("archived %d closed trades", len(rows))
}

func epochTime(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
