package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/suPer8Hu/haru-bank/internal/chat"
	"github.com/suPer8Hu/haru-bank/internal/store/rabbitmq"
	"gorm.io/gorm"
)

func openArchive(t *testing.T) *chat.Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := chat.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return chat.NewService(chat.NewRepo(gdb))
}

func TestHandleDeliveryArchivesOnce(t *testing.T) {
	svc := openArchive(t)
	ctx := context.Background()

	body, _ := json.Marshal(rabbitmq.LedgerMessage{
		EventID:     "8f14e45f-ceea-467a-9af0-1c2d3e4f5a6b",
		SessionID:   "01HZXSESSION0000000000000A",
		TxID:        "tx-1",
		Type:        "Transfer",
		Description: "To Alex",
		Amount:      500,
		Currency:    "HKD",
		Direction:   "out",
		OccurredAt:  time.Now(),
	})

	for i := 0; i < 2; i++ {
		if err := handleDelivery(ctx, svc, body); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}

	events, err := svc.ListLedgerEvents(ctx, "01HZXSESSION0000000000000A", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 archived event, got %d", len(events))
	}
}

func TestHandleDeliveryRejectsGarbage(t *testing.T) {
	svc := openArchive(t)
	if err := handleDelivery(context.Background(), svc, []byte("{not json")); err == nil {
		t.Fatalf("expected error for bad body")
	}
}
