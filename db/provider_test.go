package db

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func testProviders(t *testing.T) map[string]IterableProvider {
	t.Helper()
	providers := map[string]IterableProvider{}

	mem, err := NewMemLevelDBProvider()
	if err != nil {
		t.Fatalf("NewMemLevelDBProvider() error = %v", err)
	}
	providers["leveldb-mem"] = mem

	disk, err := NewLevelDBProvider(filepath.Join(t.TempDir(), "ldb"))
	if err != nil {
		t.Fatalf("NewLevelDBProvider() error = %v", err)
	}
	providers["leveldb"] = disk

	bolt, err := NewBoltProvider(filepath.Join(t.TempDir(), "ledger.bolt"))
	if err != nil {
		t.Fatalf("NewBoltProvider() error = %v", err)
	}
	providers["bbolt"] = bolt

	if addr := os.Getenv("QC_TEST_REDIS_ADDR"); addr != "" {
		r, err := NewRedisProvider(addr, 9)
		if err != nil {
			t.Fatalf("NewRedisProvider() error = %v", err)
		}
		r.client.FlushDB(r.ctx)
		providers["redis"] = r
	}

	t.Cleanup(func() {
		for _, p := range providers {
			p.Close()
		}
	})
	return providers
}

func TestProviderBasicOps(t *testing.T) {
	for name, p := range testProviders(t) {
		t.Run(name, func(t *testing.T) {
			v, err := p.Get([]byte("missing"))
			if err != nil || v != nil {
				t.Fatalf("Get(missing) = %v, %v; want nil, nil", v, err)
			}

			if err := p.Put([]byte("k1"), []byte("v1")); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			v, err = p.Get([]byte("k1"))
			if err != nil || string(v) != "v1" {
				t.Fatalf("Get(k1) = %q, %v", v, err)
			}
			ok, err := p.Has([]byte("k1"))
			if err != nil || !ok {
				t.Fatalf("Has(k1) = %v, %v", ok, err)
			}

			got, err := p.GetBatch([][]byte{[]byte("k1"), []byte("missing")})
			if err != nil {
				t.Fatalf("GetBatch() error = %v", err)
			}
			if len(got) != 1 || string(got["k1"]) != "v1" {
				t.Fatalf("GetBatch() = %v", got)
			}

			if err := p.Delete([]byte("k1")); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			ok, _ = p.Has([]byte("k1"))
			if ok {
				t.Fatal("key still present after Delete")
			}
		})
	}
}

func TestProviderIteratePrefixOrdered(t *testing.T) {
	for name, p := range testProviders(t) {
		t.Run(name, func(t *testing.T) {
			for _, i := range []int{3, 1, 2} {
				key := []byte("chain:a:" + strconv.Itoa(i))
				if err := p.Put(key, []byte(strconv.Itoa(i))); err != nil {
					t.Fatalf("Put() error = %v", err)
				}
			}
			p.Put([]byte("chain:b:1"), []byte("x"))

			var seen []string
			err := p.IteratePrefix([]byte("chain:a:"), func(k, v []byte) bool {
				seen = append(seen, string(v))
				return true
			})
			if err != nil {
				t.Fatalf("IteratePrefix() error = %v", err)
			}
			want := []string{"1", "2", "3"}
			if len(seen) != len(want) {
				t.Fatalf("seen %v, want %v", seen, want)
			}
			for i := range want {
				if seen[i] != want[i] {
					t.Fatalf("seen %v, want %v", seen, want)
				}
			}

			count := 0
			p.IteratePrefix([]byte("chain:a:"), func(k, v []byte) bool {
				count++
				return false
			})
			if count != 1 {
				t.Fatalf("iteration did not stop, visited %d", count)
			}
		})
	}
}

func TestDBTxManagerAtomicity(t *testing.T) {
	for name, p := range testProviders(t) {
		t.Run(name, func(t *testing.T) {
			tm := NewDBTxManager(p)

			err := tm.WithBatch(func(b DatabaseBatch) error {
				b.Put([]byte("a"), []byte("1"))
				b.Put([]byte("b"), []byte("2"))
				return nil
			})
			if err != nil {
				t.Fatalf("WithBatch() error = %v", err)
			}

			boom := errors.New("boom")
			err = tm.WithBatch(func(b DatabaseBatch) error {
				b.Put([]byte("c"), []byte("3"))
				b.Delete([]byte("a"))
				return boom
			})
			if !errors.Is(err, boom) {
				t.Fatalf("WithBatch() error = %v, want wrapped boom", err)
			}

			if ok, _ := p.Has([]byte("a")); !ok {
				t.Fatal("failed batch deleted a key")
			}
			if ok, _ := p.Has([]byte("c")); ok {
				t.Fatal("failed batch wrote a key")
			}
		})
	}
}
