package entity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDomainPart(t *testing.T) {
	cases := map[string]struct {
		id     Identifier
		domain string
		ok     bool
	}{
		"email":        {id: Email("a@example.com"), domain: "example.com", ok: true},
		"no at":        {id: Email("example.com"), ok: false},
		"two ats":      {id: Email("a@b@example.com"), ok: false},
		"empty domain": {id: Email("a@"), ok: false},
		"domain kind":  {id: Domain("bad.com"), domain: "bad.com", ok: true},
		"blank domain": {id: Domain("  "), ok: false},
		"unknown kind": {id: Identifier{Kind: "ip", Value: "1.2.3.4"}, ok: false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			domain, ok := tc.id.DomainPart()
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.domain, domain)
		})
	}
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("")
	require.NoError(t, err)
	require.Equal(t, KindEmail, kind)

	kind, err = ParseKind(" Domain ")
	require.NoError(t, err)
	require.Equal(t, KindDomain, kind)

	_, err = ParseKind("ipv4")
	require.Error(t, err)
}

func TestNormalized(t *testing.T) {
	require.Equal(t, "a@example.com", Email(" A@Example.COM ").Normalized())
}
