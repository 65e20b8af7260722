package idmangling

import (
	"encoding/base64"
	"testing"

	"go-calendar-core/core/errors"
	"go-calendar-core/core/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMangler() *Mangler {
	return NewMangler(DefaultReservedFolders, DefaultSharedPrefix)
}

func TestMangleFolder(t *testing.T) {
	m := newTestMangler()

	assert.Equal(t, "cal/3/personal", m.MangleFolder(3, "personal"))
	assert.Equal(t, "cal/0/personal", m.MangleFolder(0, "personal"))
	assert.Equal(t, `cal/2/a\/b`, m.MangleFolder(2, "a/b"))

	// reserved ids pass through only for the default account
	assert.Equal(t, "1", m.MangleFolder(0, "1"))
	assert.Equal(t, "shared/42", m.MangleFolder(0, "shared/42"))
	assert.Equal(t, "cal/5/1", m.MangleFolder(5, "1"))
	assert.Equal(t, `cal/5/shared\/42`, m.MangleFolder(5, "shared/42"))
}

func TestUnmangleFolder_RoundTrip(t *testing.T) {
	m := newTestMangler()

	cases := []struct {
		account int
		folder  string
	}{
		{0, "personal"},
		{3, "personal"},
		{12, "a/b\\c"},
		{5, "1"},
		{5, "shared/7"},
		{7, ""},
		{0, "0"},
		{0, "6"},
		{0, "shared/9"},
	}
	for _, c := range cases {
		account, folder, err := m.UnmangleFolder(m.MangleFolder(c.account, c.folder))
		require.NoError(t, err, "%d/%q", c.account, c.folder)
		assert.Equal(t, c.account, account)
		assert.Equal(t, c.folder, folder)
	}
}

func TestUnmangleFolder_Unsupported(t *testing.T) {
	m := newTestMangler()

	inputs := []string{
		"garbage-without-cal-prefix",
		"cal/1",
		"cal/1/a/b",
		"abc/1/a",
		"cal/x/a",
		"cal/-1/a",
		"cal/01/a",
		`cal/1/a\`,
		"",
	}
	for _, in := range inputs {
		_, _, err := m.UnmangleFolder(in)
		require.Error(t, err, "input %q", in)
		assert.True(t, errors.HasCode(err, errors.ErrUnsupportedFolder), "input %q: %v", in, err)
	}
}

func TestMangler_InjectedReservedSet(t *testing.T) {
	m := NewMangler([]string{"root"}, "")

	assert.Equal(t, "root", m.MangleFolder(0, "root"))
	assert.Equal(t, "cal/0/1", m.MangleFolder(0, "1"))
	assert.Equal(t, `cal/0/shared\/1`, m.MangleFolder(0, "shared/1"))

	account, folder, err := m.UnmangleFolder("root")
	require.NoError(t, err)
	assert.Equal(t, 0, account)
	assert.Equal(t, "root", folder)
}

func TestMangleEvent_Opaque(t *testing.T) {
	id := CompositeEventID{AccountID: 2, FolderID: "work", EventID: "ev-1"}
	mangled := MangleEvent(id)

	assert.NotContains(t, mangled, "=")
	assert.NotContains(t, mangled, "/")
	assert.NotContains(t, mangled, "+")

	raw, err := base64.RawURLEncoding.DecodeString(mangled)
	require.NoError(t, err)
	assert.Equal(t, "2/work/ev-1/evnt", string(raw))
}

func TestUnmangleEvent_RoundTrip(t *testing.T) {
	cases := []CompositeEventID{
		{AccountID: 0, FolderID: "1", EventID: "42"},
		{AccountID: 3, FolderID: "a/b", EventID: "c/d/e"},
		{AccountID: 9, FolderID: `x\`, EventID: `\`, RecurrenceID: types.Some("20240110T090000Z")},
		{AccountID: 1, FolderID: "", EventID: "", RecurrenceID: types.Some("")},
		{AccountID: 1234567, FolderID: "f", EventID: "evnt/evnt"},
		{AccountID: 4, FolderID: "ünï", EventID: "日本"},
	}
	for _, c := range cases {
		got, err := UnmangleEvent(MangleEvent(c))
		require.NoError(t, err, "%+v", c)
		assert.Equal(t, c, got)
	}
}

func TestUnmangleEvent_RecurrenceIsDistinct(t *testing.T) {
	base := CompositeEventID{AccountID: 1, FolderID: "f", EventID: "e"}
	withEmpty := base
	withEmpty.RecurrenceID = types.Some("")

	assert.NotEqual(t, MangleEvent(base), MangleEvent(withEmpty))
}

func TestUnmangleEvent_Malformed(t *testing.T) {
	encode := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

	inputs := []string{
		"!!!not-base64",
		"a",
		encode("no-marker"),
		encode("1/f/evnt"),
		encode("1/f/e/r/x/evnt"),
		encode("x/f/e/evnt"),
		encode(`1/f/e\/evnt`),
		encode("1//e/evnt"),
	}
	for _, in := range inputs {
		_, err := UnmangleEvent(in)
		require.Error(t, err, "input %q", in)
		assert.True(t, errors.HasCode(err, errors.ErrInvalidFormat), "input %q: %v", in, err)
	}
}

func FuzzMangleEvent(f *testing.F) {
	f.Add(0, "1", "2", "", false)
	f.Add(7, "a/b", `c\d`, "r", true)

	f.Fuzz(func(t *testing.T, account int, folder, event, rec string, hasRec bool) {
		if account < 0 {
			account = -account
		}
		if account < 0 {
			t.Skip()
		}
		id := CompositeEventID{AccountID: account, FolderID: folder, EventID: event}
		if hasRec {
			id.RecurrenceID = types.Some(rec)
		}
		got, err := UnmangleEvent(MangleEvent(id))
		if err != nil {
			t.Fatalf("unmangle(mangle(%+v)): %v", id, err)
		}
		if got != id {
			t.Fatalf("unmangle(mangle(%+v)) = %+v", id, got)
		}
	})
}
