package storage_test

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/zhouzirui/z-tavern-rpg/backend/internal/storage"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/storage/storagetest"
)

func TestOpenDrivers(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		driver string
		path   string
	}{
		{storage.DriverSQLite, filepath.Join(dir, "memory.db")},
		{storage.DriverFile, filepath.Join(dir, "memory.json")},
		{storage.DriverMemory, ""},
	}

	for _, tc := range cases {
		t.Run(tc.driver, func(t *testing.T) {
			store, err := storage.Open(tc.driver, tc.path)
			if err != nil {
				t.Fatalf("open %s: %v", tc.driver, err)
			}
			defer store.Close()

			ctx := context.Background()
			input := storagetest.SampleProfile()
			if err := store.Save(ctx, input); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, ok, err := store.Load(ctx)
			if err != nil || !ok {
				t.Fatalf("load: ok=%v err=%v", ok, err)
			}
			if !reflect.DeepEqual(got, input) {
				t.Fatalf("round trip mismatch for %s", tc.driver)
			}
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := storage.Open("redis", ""); err == nil {
		t.Fatal("expected unknown driver error")
	}
}
