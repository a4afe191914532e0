package cachekey

import (
	"strings"
	"testing"
)

func TestQueryKeyDeterministic(t *testing.T) {
	m := NewMaker("qc")

	sql := `SELECT * FROM addons WHERE author1_id = 1`
	first := m.QueryKey(sql, "default")
	second := m.QueryKey(sql, "default")
	if first != second {
		t.Errorf("identical queries produced different keys: %q vs %q", first, second)
	}

	if other := m.QueryKey(sql, "replica"); other == first {
		t.Errorf("queries on different shards share key %q", first)
	}
	if other := m.QueryKey(sql+" LIMIT 1", "default"); other == first {
		t.Errorf("different query text shares key %q", first)
	}
}

func TestKeyLayout(t *testing.T) {
	m := NewMaker("qc")

	tests := []struct {
		name     string
		key      string
		wantBase string
	}{
		{"plain", m.Key("anything"), "qc:"},
		{"query", m.QueryKey("SELECT 1", "default"), "qc:"},
		{"flush", m.FlushKey("SELECT 1"), "qc:flush:"},
		{"byid", m.ByIDKey(Ref{Entity: "users.user", PK: "1", DB: "default"}), "qc:byid:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.HasPrefix(tt.key, tt.wantBase) {
				t.Fatalf("key %q missing base %q", tt.key, tt.wantBase)
			}
			d := strings.TrimPrefix(tt.key, tt.wantBase)
			if len(d) != 32 {
				t.Errorf("digest %q is %d chars, want 32", d, len(d))
			}
		})
	}
}

func TestKeysAreBackendSafe(t *testing.T) {
	m := NewMaker("qc")

	// Material with whitespace, newlines, and far beyond the 250-byte
	// memcached key limit must still derive a short, clean key.
	material := "SELECT *\nFROM addons\twHERE name = 'a b c' AND id IN (" +
		strings.Repeat("12345678, ", 100) + "0)"
	key := m.QueryKey(material, "default")
	if len(key) >= 250 {
		t.Errorf("key length %d exceeds backend limit", len(key))
	}
	if strings.ContainsAny(key, " \t\n\r") {
		t.Errorf("key %q contains whitespace", key)
	}
}

func TestFlushKeyIgnoresShard(t *testing.T) {
	m := NewMaker("qc")

	primary := Ref{Entity: "users.user", PK: "1", DB: "default"}
	replica := Ref{Entity: "users.user", PK: "1", DB: "replica"}

	if m.FlushKeyForRef(primary) != m.FlushKeyForRef(replica) {
		t.Error("flush keys for the same row on different shards differ")
	}
	if m.ObjectKey(primary) == m.ObjectKey(replica) {
		t.Error("object keys for different shards collide")
	}
	if m.ByIDKey(primary) == m.ByIDKey(replica) {
		t.Error("byid keys for different shards collide")
	}
}

func TestIsFlushKey(t *testing.T) {
	m := NewMaker("qc")
	ref := Ref{Entity: "users.user", PK: "1"}

	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"flush key", m.FlushKeyForRef(ref), true},
		{"model flush key", m.ModelFlushKey("users.user"), true},
		{"object key", m.ObjectKey(ref), false},
		{"query key", m.QueryKey("SELECT 1", "default"), false},
		{"byid key", m.ByIDKey(ref), false},
		{"foreign prefix", NewMaker("other").FlushKey("x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.IsFlushKey(tt.key); got != tt.want {
				t.Errorf("IsFlushKey(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestModelFlushKey(t *testing.T) {
	m := NewMaker("qc")

	users := m.ModelFlushKey("users.user")
	addons := m.ModelFlushKey("addons.addon")
	if users == addons {
		t.Error("model flush keys for different entities collide")
	}
	// The sentinel identity must never alias a plausible real row.
	real := m.FlushKeyForRef(Ref{Entity: "users.user", PK: "all-pks"})
	if users == real {
		t.Error("model flush key collides with a row flush key")
	}
}

func TestLocaleFolding(t *testing.T) {
	m := NewMaker("qc")

	en := m.KeyWithLocale("greeting", "en-US")
	fr := m.KeyWithLocale("greeting", "fr")
	if en == fr {
		t.Error("locale-folded keys collide across locales")
	}
	if m.KeyWithLocale("greeting", "") != m.Key("greeting") {
		t.Error("empty locale should derive the plain key")
	}

	if m.FunctionKey("greeting", "en-US") == m.FunctionKey("greeting", "fr") {
		t.Error("function keys collide across locales")
	}
	if m.FunctionKey("greeting", "") == m.Key("greeting") {
		t.Error("function keys must be namespaced apart from plain keys")
	}
}

func BenchmarkQueryKey(b *testing.B) {
	m := NewMaker("qc")
	sql := `SELECT a.id, a.val FROM addons a JOIN users u ON u.id = a.author1_id WHERE u.id = 42 ORDER BY a.id`
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		m.QueryKey(sql, "default")
	}
}
